package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"yield/internal/domain"
	"yield/internal/notify"
	"yield/internal/repository"
)

// In-memory repositories shared by the service tests.

type fakeProfiles struct {
	mu          sync.Mutex
	profiles    map[string]*domain.Profile
	assignments map[string][]string
	lastFilter  repository.ProfileFilter
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: map[string]*domain.Profile{}, assignments: map[string][]string{}}
}

func (f *fakeProfiles) add(p *domain.Profile) { f.profiles[p.UserID] = p }

func (f *fakeProfiles) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) ListProfiles(_ context.Context, filter repository.ProfileFilter, _ int) ([]*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	var out []*domain.Profile
	for _, p := range f.profiles {
		if !p.IsActive {
			continue
		}
		if filter.All ||
			(filter.LocationID != "" && p.LocationID.String == filter.LocationID) ||
			(filter.RegionID != "" && p.RegionID.String == filter.RegionID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProfiles) UpsertProfile(_ context.Context, p *domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.profiles[p.UserID] = &cp
	return nil
}

func (f *fakeProfiles) DeactivateProfile(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if !p.IsActive {
		return false, nil
	}
	p.IsActive = false
	delete(f.assignments, id)
	return true, nil
}

func (f *fakeProfiles) AssignedLocationIDs(_ context.Context, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assignments[id], nil
}

type fakeLocations struct {
	mu     sync.Mutex
	locs   map[string]*domain.Location
	status []string
	alerts *fakeAlerts
	// failAlert fails the alert insert, rolling back the status change.
	failAlert error
	// raceStatus makes the next status change lose to an identical one.
	raceStatus bool
}

func (f *fakeLocations) add(l *domain.Location) { f.locs[l.ID] = l }

func (f *fakeLocations) GetLocation(_ context.Context, id string) (*domain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLocations) ListLocations(_ context.Context, filter repository.LocationFilter) ([]*domain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Location
	for _, l := range f.locs {
		if filter.Kind != "" && l.Kind != filter.Kind {
			continue
		}
		if filter.ParentID != "" && l.ParentID.String != filter.ParentID {
			continue
		}
		if filter.RegionID != "" && l.Ref().RegionID != filter.RegionID {
			continue
		}
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, l.ID) {
			continue
		}
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b *domain.Location) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (f *fakeLocations) CreateSite(_ context.Context, name, regionID string) (*domain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	site := &domain.Location{
		ID: fmt.Sprintf("site-%d", len(f.locs)+1), Name: name, Kind: domain.LocationSite, Active: true,
		RegionID: nullString(regionID), ResolvedRegionID: regionID,
	}
	f.locs[site.ID] = site
	cp := *site
	return &cp, nil
}

func (f *fakeLocations) RenameSite(_ context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locs[id]
	if !ok || l.Kind != domain.LocationSite {
		return repository.ErrNotFound
	}
	l.Name = name
	return nil
}

func (f *fakeLocations) DeactivateSite(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locs[id]
	if !ok || l.Kind != domain.LocationSite {
		return false, repository.ErrNotFound
	}
	if !l.Active {
		return false, nil
	}
	l.Active = false
	return true, nil
}

func (f *fakeLocations) CreateNextVehicleUnit(_ context.Context, siteID, typeName string) (*domain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	site := f.locs[siteID]
	var vt *domain.Location
	for _, l := range f.locs {
		if l.Kind == domain.LocationVehicleType && l.ParentID.String == siteID && l.Name == typeName {
			vt = l
		}
	}
	if vt == nil {
		vt = &domain.Location{
			ID: "vt-" + typeName, Name: typeName, Kind: domain.LocationVehicleType, Active: true,
			ParentID: nullString(siteID), ResolvedRegionID: site.Ref().RegionID,
		}
		f.locs[vt.ID] = vt
	}
	var n int64
	for _, l := range f.locs {
		if l.ParentID.String == vt.ID && l.SequenceNumber.Int64 > n {
			n = l.SequenceNumber.Int64
		}
	}
	n++
	unit := &domain.Location{
		ID: fmt.Sprintf("%s-%d", vt.ID, n), Name: fmt.Sprintf("%s %d", typeName, n),
		Kind: domain.LocationVehicleUnit, Active: true, ParentID: nullString(vt.ID),
		OperationalStatus: domain.StatusInService, ResolvedRegionID: vt.ResolvedRegionID,
	}
	unit.SequenceNumber.Int64, unit.SequenceNumber.Valid = n, true
	f.locs[unit.ID] = unit
	cp := *unit
	return &cp, nil
}

func (f *fakeLocations) SetOperationalStatus(ctx context.Context, id string, st domain.OperationalStatus, note, _ string, alert *domain.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if f.raceStatus {
		f.raceStatus = false
		l.OperationalStatus = st
		return repository.ErrConflict
	}
	if l.OperationalStatus == st {
		return repository.ErrConflict
	}
	if alert != nil {
		if f.failAlert != nil {
			return fmt.Errorf("create alert: %w", f.failAlert)
		}
		if _, err := f.alerts.CreateAlert(ctx, alert); err != nil {
			return err
		}
	}
	l.OperationalStatus = st
	l.StatusNote = nullString(note)
	f.status = append(f.status, id+"="+string(st))
	return nil
}

type fakeAlerts struct {
	mu      sync.Mutex
	alerts  map[string]*domain.Alert
	created int
	acks    int
	// raceAck makes the next acknowledge lose to a concurrent one.
	raceAck bool
}

func (f *fakeAlerts) GetAlert(_ context.Context, id string) (*domain.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alerts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAlerts) ListAlerts(_ context.Context, filter repository.AlertFilter) ([]*domain.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Alert
	for _, a := range f.alerts {
		if a.Status == filter.Status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlerts) CreateAlert(_ context.Context, a *domain.Alert) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	a.ID = fmt.Sprintf("alert-%d", f.created)
	cp := *a
	f.alerts[a.ID] = &cp
	return a.ID, nil
}

func (f *fakeAlerts) AcknowledgeAlert(_ context.Context, id, actorID, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alerts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if f.raceAck {
		a.Status = domain.AlertAcknowledged
		a.AcknowledgedBy = nullString("someone-else")
		return repository.ErrConflict
	}
	if a.Status != domain.AlertOpen {
		return repository.ErrConflict
	}
	f.acks++
	a.Status = domain.AlertAcknowledged
	a.AcknowledgedBy = nullString(actorID)
	a.AcknowledgeNote = nullString(note)
	a.AcknowledgedAt.Time, a.AcknowledgedAt.Valid = time.Now(), true
	return nil
}

type fakeAudit struct {
	mu         sync.Mutex
	records    []*domain.AuditRecord
	lastFilter repository.AuditFilter
	failWrites bool
}

func (f *fakeAudit) AppendAudit(_ context.Context, rec *domain.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("audit store down")
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeAudit) ListAudit(_ context.Context, filter repository.AuditFilter) ([]*domain.AuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	return f.records, nil
}

func (f *fakeAudit) last() *domain.AuditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) == 0 {
		return nil
	}
	return f.records[len(f.records)-1]
}

type fakeItems struct {
	mu      sync.Mutex
	items   map[string]*domain.TrackedItem
	entries []*domain.Entry
	seq     int
}

func (f *fakeItems) GetItem(_ context.Context, id string) (*domain.TrackedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeItems) ListItems(_ context.Context, locationID string) ([]*domain.TrackedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.TrackedItem
	for _, t := range f.items {
		if t.LocationID == locationID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b *domain.TrackedItem) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (f *fakeItems) CreateItem(_ context.Context, t *domain.TrackedItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t.ID = fmt.Sprintf("item-%d", f.seq)
	cp := *t
	f.items[t.ID] = &cp
	return t.ID, nil
}

func (f *fakeItems) UpdateItem(_ context.Context, t *domain.TrackedItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.items[t.ID]
	if !ok {
		return repository.ErrConflict
	}
	if cur.BaselineLocked && (cur.BaselineInput != t.BaselineInput || cur.BaselineOutput != t.BaselineOutput) {
		return repository.ErrConflict
	}
	cp := *t
	f.items[t.ID] = &cp
	return nil
}

func (f *fakeItems) DeleteItem(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeItems) LockBaseline(_ context.Context, id string, in, out float64, actorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.items[id]
	if t.BaselineLocked {
		return repository.ErrConflict
	}
	t.BaselineLocked = true
	t.BaselineLockedBy = nullString(actorID)
	return nil
}

func (f *fakeItems) AddEntry(_ context.Context, e *domain.Entry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	e.ID = fmt.Sprintf("entry-%d", f.seq)
	cp := *e
	f.entries = append(f.entries, &cp)
	return e.ID, nil
}

func (f *fakeItems) ListEntries(_ context.Context, ids []string, perItem int) ([]*domain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Entry
	seen := map[string]int{}
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if !slices.Contains(ids, e.TrackedItemID) {
			continue
		}
		if perItem > 0 && seen[e.TrackedItemID] >= perItem {
			continue
		}
		seen[e.TrackedItemID]++
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeItems) ListReadings(_ context.Context, ids []string) (map[string][]domain.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]domain.Reading{}
	for _, e := range f.entries {
		if slices.Contains(ids, e.TrackedItemID) {
			out[e.TrackedItemID] = append(out[e.TrackedItemID], e.Reading())
		}
	}
	return out, nil
}

type fakeCalibration struct {
	mu        sync.Mutex
	standards map[string]*domain.CalibrationStandard
	lastIDs   []string
	seq       int
}

func (f *fakeCalibration) GetStandard(_ context.Context, id string) (*domain.CalibrationStandard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.standards[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCalibration) ListStandards(_ context.Context, ids []string, activeOnly bool) ([]*domain.CalibrationStandard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastIDs = ids
	var out []*domain.CalibrationStandard
	for _, c := range f.standards {
		if (ids == nil || slices.Contains(ids, c.LocationID)) && (!activeOnly || c.Active) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCalibration) CreateStandard(_ context.Context, c *domain.CalibrationStandard) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	c.ID = fmt.Sprintf("cal-%d", f.seq)
	cp := *c
	f.standards[c.ID] = &cp
	return c.ID, nil
}

func (f *fakeCalibration) UpdateStandard(_ context.Context, c *domain.CalibrationStandard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.standards[c.ID] = &cp
	return nil
}

type fakeTraining struct {
	mu          sync.Mutex
	sessions    map[string]*domain.TrainingSession
	completions map[string]bool
	lastFilter  repository.TrainingFilter
	seq         int
}

func (f *fakeTraining) GetSession(_ context.Context, id string) (*domain.TrainingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeTraining) ListSessions(_ context.Context, filter repository.TrainingFilter) ([]*domain.TrainingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	var out []*domain.TrainingSession
	for _, s := range f.sessions {
		if filter.LocationIDs != nil && !slices.Contains(filter.LocationIDs, s.LocationID) {
			continue
		}
		if filter.EmployeeID != "" && s.EmployeeID != filter.EmployeeID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeTraining) CreateSession(_ context.Context, s *domain.TrainingSession) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	s.ID = fmt.Sprintf("session-%d", f.seq)
	cp := *s
	f.sessions[s.ID] = &cp
	return s.ID, nil
}

func (f *fakeTraining) UpdateSession(_ context.Context, s *domain.TrainingSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeTraining) CompleteSession(_ context.Context, sessionID, employeeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionID + "/" + employeeID
	if f.completions[key] {
		return false, nil
	}
	f.completions[key] = true
	f.sessions[sessionID].Status = domain.TrainingCompleted
	return true, nil
}

type fakeAccounts struct {
	created []string
	err     error
}

func (f *fakeAccounts) CreateAccount(_ context.Context, email, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, email)
	return fmt.Sprintf("user-%d", len(f.created)), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveDecision(action, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[action+":"+outcome]++
}

func (o *countingObserver) get(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[key]
}

// ============================================
// fixture
// ============================================

// world: region r1 holds site-a (with truck type and unit), region r2 holds site-b.
type world struct {
	profiles    *fakeProfiles
	locations   *fakeLocations
	alerts      *fakeAlerts
	audit       *fakeAudit
	items       *fakeItems
	calibration *fakeCalibration
	training    *fakeTraining
	accounts    *fakeAccounts
	events      *recordingPublisher
	decisions   *countingObserver
}

var (
	master   = domain.Actor{ID: "master-1", Role: domain.RoleMasterAdmin}
	regional = domain.Actor{ID: "regional-1", Role: domain.RoleRegionalAdmin, RegionID: "r1"}
	local    = domain.Actor{ID: "local-1", Role: domain.RoleLocalAdmin, LocationID: "site-a", RegionID: "r1"}
	employee = domain.Actor{ID: "employee-1", Role: domain.RoleEmployee, LocationID: "site-a", RegionID: "r1"}
)

func newWorld() *world {
	w := &world{
		profiles:    newFakeProfiles(),
		locations:   &fakeLocations{locs: map[string]*domain.Location{}},
		alerts:      &fakeAlerts{alerts: map[string]*domain.Alert{}},
		audit:       &fakeAudit{},
		items:       &fakeItems{items: map[string]*domain.TrackedItem{}},
		calibration: &fakeCalibration{standards: map[string]*domain.CalibrationStandard{}},
		training:    &fakeTraining{sessions: map[string]*domain.TrainingSession{}, completions: map[string]bool{}},
		accounts:    &fakeAccounts{},
		events:      &recordingPublisher{},
		decisions:   &countingObserver{},
	}
	w.locations.alerts = w.alerts
	w.locations.add(&domain.Location{ID: "site-a", Name: "Site A", Kind: domain.LocationSite, Active: true, RegionID: nullString("r1")})
	w.locations.add(&domain.Location{ID: "site-b", Name: "Site B", Kind: domain.LocationSite, Active: true, RegionID: nullString("r2")})
	w.locations.add(&domain.Location{ID: "type-truck", Name: "Truck", Kind: domain.LocationVehicleType, Active: true,
		ParentID: nullString("site-a"), ResolvedRegionID: "r1"})
	w.locations.add(&domain.Location{ID: "unit-truck-1", Name: "Truck 1", Kind: domain.LocationVehicleUnit, Active: true,
		ParentID: nullString("type-truck"), ResolvedRegionID: "r1", OperationalStatus: domain.StatusInService})

	for _, a := range []domain.Actor{master, regional, local, employee} {
		w.profiles.add(&domain.Profile{
			UserID:     a.ID,
			Role:       a.Role,
			LocationID: nullString(a.LocationID),
			RegionID:   nullString(a.RegionID),
			IsActive:   true,
		})
	}
	w.profiles.assignments[employee.ID] = []string{"site-a"}
	return w
}

func (w *world) addItem(id, locationID string, in, out float64) *domain.TrackedItem {
	t := &domain.TrackedItem{
		ID: id, LocationID: locationID, Name: id, Unit: "kg", ValuePerUnit: 2,
		ToleranceGreen: domain.DefaultToleranceGreen, ToleranceYellow: domain.DefaultToleranceYellow,
	}
	if in > 0 {
		t.BaselineInput = nullFloat(&in)
	}
	if out > 0 {
		t.BaselineOutput = nullFloat(&out)
	}
	w.items.items[id] = t
	return t
}
