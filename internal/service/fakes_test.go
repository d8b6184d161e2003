package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/core"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/data"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/google/uuid"
)

// fakeLinkRepo is an in-memory LinkDistributionRepository. Reads return
// copies so callers observe persisted state only.
type fakeLinkRepo struct {
	mu       sync.Mutex
	nextID   int64
	nextLink int64
	dists    map[int64]*model.LinkDistribution
	links    map[int64][]*model.RecipientLink
	profiles map[uuid.UUID]*model.Profile

	updateLinksCalls int
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{
		dists:    make(map[int64]*model.LinkDistribution),
		links:    make(map[int64][]*model.RecipientLink),
		profiles: make(map[uuid.UUID]*model.Profile),
	}
}

var _ core.LinkDistributionRepository = (*fakeLinkRepo)(nil)

func (f *fakeLinkRepo) put(d *model.LinkDistribution) *model.LinkDistribution {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.ID == 0 {
		f.nextID++
		d.ID = f.nextID
	}
	if d.UID == uuid.Nil {
		d.UID = uuid.New()
	}
	cp := *d
	f.dists[d.ID] = &cp
	return d
}

// addLinks records links with their profiles for distribution id.
func (f *fakeLinkRepo) addLinks(id int64, links ...*model.RecipientLink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range links {
		if l.ID == 0 {
			f.nextLink++
			l.ID = 1000 + f.nextLink
		}
		l.DistributionID = id
		if l.Profile != nil {
			f.profiles[l.ProfileID] = l.Profile
		}
		cp := *l
		f.links[id] = append(f.links[id], &cp)
	}
}

func (f *fakeLinkRepo) get(id int64) *model.LinkDistribution {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dists[id]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

func (f *fakeLinkRepo) Create(_ context.Context, req *model.CreateLinkDistributionRequest) (*model.LinkDistribution, error) {
	d := &model.LinkDistribution{
		Distribution:   model.Distribution{Description: req.Description, CreatedAt: time.Now().UTC()},
		SurveyID:       req.SurveyID,
		PanelIDs:       req.PanelIDs,
		ExpirationDate: req.ExpirationDate,
	}
	return f.put(d), nil
}

func (f *fakeLinkRepo) GetByID(_ context.Context, id int64) (*model.LinkDistribution, error) {
	if d := f.get(id); d != nil {
		return d, nil
	}
	return nil, data.ErrDistributionNotFound
}

func (f *fakeLinkRepo) List(context.Context, core.LinkDistributionListOptions) ([]*model.LinkDistribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.LinkDistribution, 0, len(f.dists))
	for _, d := range f.dists {
		cp := *d
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *model.LinkDistribution) int { return int(a.ID - b.ID) })
	return out, nil
}

func (f *fakeLinkRepo) mutate(id int64, fn func(d *model.LinkDistribution)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dists[id]
	if !ok {
		return data.ErrDistributionNotFound
	}
	fn(d)
	return nil
}

func (f *fakeLinkRepo) UpdateDescription(_ context.Context, id int64, description string) error {
	return f.mutate(id, func(d *model.LinkDistribution) { d.Description = description })
}

func (f *fakeLinkRepo) SetExpirationDate(_ context.Context, id int64, at time.Time) error {
	return f.mutate(id, func(d *model.LinkDistribution) { d.ExpirationDate = &at })
}

func (f *fakeLinkRepo) UpdateRefs(_ context.Context, id int64, refs core.RefUpdate) error {
	return f.mutate(id, func(d *model.LinkDistribution) {
		if refs.ListID != nil && d.ListID == "" {
			d.ListID = *refs.ListID
		}
		if refs.ImportID != nil && d.ImportID == "" {
			d.ImportID = *refs.ImportID
		}
		if refs.Remote != nil && !d.Remote.IsSet() {
			d.Remote = *refs.Remote
		}
	})
}

func (f *fakeLinkRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.dists[id]; !ok {
		return data.ErrDistributionNotFound
	}
	delete(f.dists, id)
	delete(f.links, id)
	return nil
}

func (f *fakeLinkRepo) ReplaceLinks(_ context.Context, id int64, profileIDs []uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	links := make([]*model.RecipientLink, 0, len(profileIDs))
	for _, uid := range profileIDs {
		f.nextLink++
		links = append(links, &model.RecipientLink{ID: 1000 + f.nextLink, DistributionID: id, ProfileID: uid})
	}
	f.links[id] = links
	return len(links), nil
}

func (f *fakeLinkRepo) Links(_ context.Context, id int64) ([]*model.RecipientLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copyLinks(f.links[id]), nil
}

func (f *fakeLinkRepo) copyLinks(links []*model.RecipientLink) []*model.RecipientLink {
	out := make([]*model.RecipientLink, len(links))
	for i, l := range links {
		cp := *l
		cp.Profile = f.profiles[l.ProfileID]
		out[i] = &cp
	}
	return out
}

func (f *fakeLinkRepo) linkByID(id int64) *model.RecipientLink {
	for _, links := range f.links {
		for _, l := range links {
			if l.ID == id {
				return l
			}
		}
	}
	return nil
}

func (f *fakeLinkRepo) UpdateLinks(_ context.Context, links []*model.RecipientLink) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateLinksCalls++
	n := 0
	for _, l := range links {
		if stored := f.linkByID(l.ID); stored != nil {
			stored.ContactID = l.ContactID
			stored.URL = l.URL
			n++
		}
	}
	return n, nil
}

// fakeMessageRepo is an in-memory MessageDistributionRepository resolving
// recipients through links.
type fakeMessageRepo struct {
	mu         sync.Mutex
	nextID     int64
	dists      map[int64]*model.MessageDistribution
	recipients map[int64][]int64
	links      *fakeLinkRepo
}

func newFakeMessageRepo(links *fakeLinkRepo) *fakeMessageRepo {
	return &fakeMessageRepo{
		dists:      make(map[int64]*model.MessageDistribution),
		recipients: make(map[int64][]int64),
		links:      links,
	}
}

var _ core.MessageDistributionRepository = (*fakeMessageRepo)(nil)

func (f *fakeMessageRepo) put(d *model.MessageDistribution) *model.MessageDistribution {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.ID == 0 {
		f.nextID++
		d.ID = 100 + f.nextID
	}
	if d.UID == uuid.Nil {
		d.UID = uuid.New()
	}
	cp := *d
	f.dists[d.ID] = &cp
	if d.FallbackOf != nil {
		if parent, ok := f.dists[*d.FallbackOf]; ok {
			id := d.ID
			parent.FallbackID = &id
		}
	}
	return d
}

func (f *fakeMessageRepo) get(id int64) *model.MessageDistribution {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dists[id]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

func (f *fakeMessageRepo) Create(
	_ context.Context,
	req *model.CreateMessageDistributionRequest,
) (*model.MessageDistribution, error) {
	d := &model.MessageDistribution{
		Distribution:       model.Distribution{Description: req.Description, CreatedAt: time.Now().UTC()},
		LinkDistributionID: req.LinkDistributionID,
		ContactMode:        req.ContactMode,
		Target:             req.Target,
		MessageID:          req.MessageID,
		SubjectID:          req.SubjectID,
		FallbackOf:         req.FallbackOf,
	}
	return f.put(d), nil
}

func (f *fakeMessageRepo) GetByID(_ context.Context, id int64) (*model.MessageDistribution, error) {
	if d := f.get(id); d != nil {
		return d, nil
	}
	return nil, data.ErrDistributionNotFound
}

func (f *fakeMessageRepo) ListByLinkDistribution(_ context.Context, linkDistributionID int64) ([]*model.MessageDistribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.MessageDistribution
	for _, d := range f.dists {
		if d.LinkDistributionID == linkDistributionID {
			cp := *d
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *model.MessageDistribution) int { return int(a.ID - b.ID) })
	return out, nil
}

func (f *fakeMessageRepo) mutate(id int64, fn func(d *model.MessageDistribution)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dists[id]
	if !ok {
		return data.ErrDistributionNotFound
	}
	fn(d)
	return nil
}

func (f *fakeMessageRepo) UpdateDescription(_ context.Context, id int64, description string) error {
	return f.mutate(id, func(d *model.MessageDistribution) { d.Description = description })
}

func (f *fakeMessageRepo) SetSendDate(_ context.Context, id int64, at time.Time) error {
	return f.mutate(id, func(d *model.MessageDistribution) { d.SendDate = &at })
}

func (f *fakeMessageRepo) UpdateRefs(_ context.Context, id int64, refs core.RefUpdate) error {
	return f.mutate(id, func(d *model.MessageDistribution) {
		if refs.BatchID != nil && d.BatchID == "" {
			d.BatchID = *refs.BatchID
		}
		if refs.ImportID != nil && d.ImportID == "" {
			d.ImportID = *refs.ImportID
		}
		if refs.Remote != nil && !d.Remote.IsSet() {
			d.Remote = *refs.Remote
		}
	})
}

func (f *fakeMessageRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dists[id]
	if !ok {
		return data.ErrDistributionNotFound
	}
	if d.FallbackID != nil {
		delete(f.dists, *d.FallbackID)
	}
	if d.FallbackOf != nil {
		if parent, ok := f.dists[*d.FallbackOf]; ok {
			parent.FallbackID = nil
		}
	}
	delete(f.dists, id)
	delete(f.recipients, id)
	return nil
}

func (f *fakeMessageRepo) SetRecipients(_ context.Context, id int64, linkIDs []int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipients[id] = slices.Clone(linkIDs)
	return len(linkIDs), nil
}

func (f *fakeMessageRepo) Recipients(_ context.Context, id int64) ([]*model.RecipientLink, error) {
	f.mu.Lock()
	ids := slices.Clone(f.recipients[id])
	f.mu.Unlock()

	f.links.mu.Lock()
	defer f.links.mu.Unlock()
	var stored []*model.RecipientLink
	for _, linkID := range ids {
		if l := f.links.linkByID(linkID); l != nil {
			stored = append(stored, l)
		}
	}
	return f.links.copyLinks(stored), nil
}

func (f *fakeMessageRepo) recipientIDs(id int64) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.recipients[id])
}

// fakeProfileRepo serves a fixed recipient source.
type fakeProfileRepo struct {
	profiles []*model.Profile
}

var _ core.ProfileRepository = (*fakeProfileRepo)(nil)

func (f *fakeProfileRepo) Candidates(_ context.Context, panelIDs []int64) ([]*model.Profile, error) {
	var out []*model.Profile
	for _, p := range f.profiles {
		if slices.Contains(panelIDs, p.Panel.ID) && !p.IsOptOut {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProfileRepo) GetByUID(_ context.Context, uid uuid.UUID) (*model.Profile, error) {
	for _, p := range f.profiles {
		if p.UID == uid {
			return p, nil
		}
	}
	return nil, data.ErrProfileNotFound
}

func (f *fakeProfileRepo) CountByPanel(_ context.Context, panelIDs []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(panelIDs))
	for _, id := range panelIDs {
		out[id] = 0
	}
	for _, p := range f.profiles {
		if _, ok := out[p.Panel.ID]; ok {
			out[p.Panel.ID]++
		}
	}
	return out, nil
}
