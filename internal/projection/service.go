// Package projection composes catalog items and count records into the
// read models served to workers and administrators.
package projection

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocktake-backend/pkg/calendar"
	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocktake-backend/pkg/errors"
)

// Service exposes the read-side views.
type Service interface {
	Worklist(ctx context.Context, userID uuid.UUID) (*Worklist, error)
	StatusGrid(ctx context.Context, start, end *time.Time, userID *uuid.UUID) (*StatusGrid, error)
	Summary(ctx context.Context, start, end *time.Time) (*Summary, error)
	Progress(ctx context.Context, start, end *time.Time) (*Progress, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error)
	List(ctx context.Context, role *enums.Role) ([]models.User, error)
}

type service struct {
	repo     Repository
	users    userLookup
	calendar *calendar.Calendar
}

// ServiceParams groups projection dependencies.
type ServiceParams struct {
	Repo     Repository
	Users    userLookup
	Calendar *calendar.Calendar
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "projection repository required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user lookup required")
	}
	if params.Calendar == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "calendar required")
	}
	return &service{repo: params.Repo, users: params.Users, calendar: params.Calendar}, nil
}

// Worklist joins today's items owned by the user's current name with the
// user's own records. Items are matched by name, so renaming a user detaches
// them from catalog rows uploaded under the old name.
func (s *service) Worklist(ctx context.Context, userID uuid.UUID) (*Worklist, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	day := s.calendar.Today()
	items, err := s.repo.ItemsForOwner(ctx, day, user.Name)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load worklist items")
	}
	best, err := s.bestRecords(ctx, items, &user.ID)
	if err != nil {
		return nil, err
	}

	out := &Worklist{
		Day:      calendar.FormatDay(day),
		UserName: user.Name,
		Items:    make([]ItemView, 0, len(items)),
	}
	for _, item := range items {
		out.Items = append(out.Items, viewOf(item, best[item.ID]))
	}
	return out, nil
}

func (s *service) StatusGrid(ctx context.Context, start, end *time.Time, userID *uuid.UUID) (*StatusGrid, error) {
	rng, err := s.calendar.Resolve(start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date range")
	}

	var ownerName *string
	if userID != nil {
		user, err := s.loadUser(ctx, *userID)
		if err != nil {
			return nil, err
		}
		ownerName = &user.Name
	}

	items, err := s.repo.ItemsInRange(ctx, rng.Start, rng.End, ownerName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog items")
	}
	best, err := s.bestRecords(ctx, items, userID)
	if err != nil {
		return nil, err
	}

	ownerIDs := make([]uuid.UUID, 0, len(best))
	seen := make(map[uuid.UUID]struct{}, len(best))
	for _, r := range best {
		if _, ok := seen[r.UserID]; !ok {
			seen[r.UserID] = struct{}{}
			ownerIDs = append(ownerIDs, r.UserID)
		}
	}
	owners, err := s.users.FindByIDs(ctx, ownerIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load record owners")
	}

	grid := &StatusGrid{
		StartDay: calendar.FormatDay(rng.Start),
		EndDay:   calendar.FormatDay(rng.End),
		Rows:     make([]GridRow, 0, len(items)),
	}
	for _, item := range items {
		record := best[item.ID]
		row := GridRow{ItemView: viewOf(item, record), UserName: item.OwnerName}
		if record != nil {
			uid := record.UserID
			row.UserID = &uid
			if owner, ok := owners[uid]; ok {
				row.UserName = owner.Name
			}
		}
		grid.Rows = append(grid.Rows, row)
	}
	return grid, nil
}

// Summary aggregates progress per workshop. The three aggregate queries are
// independent and run concurrently.
func (s *service) Summary(ctx context.Context, start, end *time.Time) (*Summary, error) {
	rng, err := s.calendar.Resolve(start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date range")
	}

	var (
		itemCounts    []workshopCount
		recordCounts  []workshopStatusCount
		countedCounts []workshopCount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		itemCounts, err = s.repo.ItemCountsByWorkshop(gctx, rng.Start, rng.End)
		return err
	})
	g.Go(func() error {
		var err error
		recordCounts, err = s.repo.RecordCountsByWorkshop(gctx, rng.Start, rng.End)
		return err
	})
	g.Go(func() error {
		var err error
		countedCounts, err = s.repo.CountedItemsByWorkshop(gctx, rng.Start, rng.End)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate summary")
	}

	byWorkshop := map[string]*WorkshopSummary{}
	entry := func(name string) *WorkshopSummary {
		if ws, ok := byWorkshop[name]; ok {
			return ws
		}
		ws := &WorkshopSummary{Workshop: name}
		byWorkshop[name] = ws
		return ws
	}
	for _, c := range itemCounts {
		entry(c.Workshop).Items = c.Count
	}
	for _, c := range countedCounts {
		entry(c.Workshop).CountedItems = c.Count
	}
	for _, c := range recordCounts {
		ws := entry(c.Workshop)
		switch enums.RecordStatus(c.Status) {
		case enums.RecordStatusDraft:
			ws.Drafts += c.Records
		case enums.RecordStatusSubmitted:
			ws.Submitted += c.Records
			ws.SubmittedItems += c.Items
		}
	}

	summary := &Summary{
		StartDay:  calendar.FormatDay(rng.Start),
		EndDay:    calendar.FormatDay(rng.End),
		Workshops: make([]WorkshopSummary, 0, len(byWorkshop)),
	}
	for _, ws := range byWorkshop {
		ws.CompletionRate = rate(ws.SubmittedItems, ws.Items)
		summary.Items += ws.Items
		summary.Drafts += ws.Drafts
		summary.Submitted += ws.Submitted
		summary.CountedItems += ws.CountedItems
		summary.SubmittedItems += ws.SubmittedItems
		summary.Workshops = append(summary.Workshops, *ws)
	}
	sort.Slice(summary.Workshops, func(i, j int) bool {
		return summary.Workshops[i].Workshop < summary.Workshops[j].Workshop
	})
	summary.Records = summary.Drafts + summary.Submitted
	summary.UncountedItems = summary.Items - summary.CountedItems
	summary.CompletionRate = rate(summary.SubmittedItems, summary.Items)
	return summary, nil
}

// Progress reports record counts per user and per the users' workshops.
// Every worker is listed, with zero counts if they recorded nothing in the
// range; other accounts appear only when they own records.
func (s *service) Progress(ctx context.Context, start, end *time.Time) (*Progress, error) {
	rng, err := s.calendar.Resolve(start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date range")
	}

	var (
		people []models.User
		counts []userStatusCount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		people, err = s.users.List(gctx, nil)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.repo.RecordCountsByUser(gctx, rng.Start, rng.End)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate progress")
	}

	byUser := make(map[uuid.UUID]*UserProgress, len(people))
	for _, c := range counts {
		up, ok := byUser[c.UserID]
		if !ok {
			up = &UserProgress{UserID: c.UserID}
			byUser[c.UserID] = up
		}
		switch enums.RecordStatus(c.Status) {
		case enums.RecordStatusDraft:
			up.Drafts += c.Records
		case enums.RecordStatusSubmitted:
			up.Submitted += c.Records
		}
	}

	out := &Progress{
		StartDay: calendar.FormatDay(rng.Start),
		EndDay:   calendar.FormatDay(rng.End),
		Users:    make([]UserProgress, 0, len(people)),
	}
	workshops := map[string]*WorkshopProgress{}
	for _, u := range people {
		up, ok := byUser[u.ID]
		if !ok {
			if u.Role != enums.RoleWorker {
				continue
			}
			up = &UserProgress{UserID: u.ID}
		}
		up.Name = u.Name
		up.Workshop = u.Workshop
		up.Total = up.Drafts + up.Submitted
		up.CompletionRate = rate(up.Submitted, up.Total)
		out.Users = append(out.Users, *up)

		ws, ok := workshops[u.Workshop]
		if !ok {
			ws = &WorkshopProgress{Workshop: u.Workshop}
			workshops[u.Workshop] = ws
		}
		ws.Users++
		ws.TotalRecords += up.Total
		ws.SubmittedRecords += up.Submitted
	}

	out.Workshops = make([]WorkshopProgress, 0, len(workshops))
	for _, ws := range workshops {
		ws.CompletionRate = rate(ws.SubmittedRecords, ws.TotalRecords)
		out.Workshops = append(out.Workshops, *ws)
	}
	sort.Slice(out.Users, func(i, j int) bool {
		a, b := out.Users[i], out.Users[j]
		if a.Workshop != b.Workshop {
			return a.Workshop < b.Workshop
		}
		return a.Name < b.Name
	})
	sort.Slice(out.Workshops, func(i, j int) bool {
		return out.Workshops[i].Workshop < out.Workshops[j].Workshop
	})
	return out, nil
}

func (s *service) loadUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func (s *service) bestRecords(ctx context.Context, items []models.CatalogItem, userID *uuid.UUID) (map[uuid.UUID]*models.CountRecord, error) {
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	records, err := s.repo.RecordsForItems(ctx, ids, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load count records")
	}
	best := make(map[uuid.UUID]*models.CountRecord, len(records))
	for i := range records {
		candidate := &records[i]
		if current, ok := best[candidate.CatalogItemID]; !ok || preferred(candidate, current) {
			best[candidate.CatalogItemID] = candidate
		}
	}
	return best, nil
}

// preferred reports whether a should be shown instead of b: submitted beats
// draft, then the latest submission, then the latest update.
func preferred(a, b *models.CountRecord) bool {
	if a.IsSubmitted() != b.IsSubmitted() {
		return a.IsSubmitted()
	}
	as, bs := submittedAt(a), submittedAt(b)
	if !as.Equal(bs) {
		return as.After(bs)
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

func submittedAt(r *models.CountRecord) time.Time {
	if r.SubmittedAt == nil {
		return time.Time{}
	}
	return *r.SubmittedAt
}

func rate(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
