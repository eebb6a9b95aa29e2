// Package registration runs the applicant-facing submit flow and the admin
// views over the three registration variants.
package registration

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pmbdev/intake/app/repository"
	"github.com/pmbdev/intake/internal/pkg/apperr"
	"github.com/pmbdev/intake/internal/pkg/projector"
	"github.com/pmbdev/intake/internal/pkg/schema"
)

const (
	DefaultPerPage = 25
	MaxPerPage     = 200
)

// summaryFields are read for listings; the rest of a row stays in the database.
var summaryFields = []string{
	"id",
	"jalur_pendaftaran",
	"nama_lengkap",
	"username",
	"alamat_email",
	"nomor_hp",
	"status_pembayaran",
	"otp_terverifikasi",
	"berkas_terunggah",
	"created_at",
}

var searchFields = []string{"nama_lengkap", "alamat_email", "nomor_hp"}

type Filter struct {
	Query  string
	Source string
}

type Page struct {
	Page    int
	PerPage int
}

// Normalize clamps the page to usable bounds.
func (p Page) Normalize() Page {
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	if p.Page < 1 {
		p.Page = 1
	}
	return p
}

type Listing struct {
	Data     []projector.View `json:"data"`
	Total    int              `json:"total"`
	Page     int              `json:"current_page"`
	PerPage  int              `json:"per_page"`
	LastPage int              `json:"last_page"`
}

type Counts struct {
	Total   int64 `json:"total"`
	Paid    int64 `json:"paid"`
	Pending int64 `json:"pending"`
}

type Summary struct {
	Variants map[schema.Variant]Counts `json:"variants"`
	Total    Counts                    `json:"total"`
}

// Aggregator reads all variants as one logical collection.
type Aggregator struct {
	repo      repository.RegistrationRepository
	projector *projector.Projector
}

func NewAggregator(repo repository.RegistrationRepository, p *projector.Projector) *Aggregator {
	return &Aggregator{repo: repo, projector: p}
}

func summaryColumns(d *schema.Descriptor) []string {
	cols := make([]string, 0, len(summaryFields))
	for _, f := range summaryFields {
		if d.Has(f) {
			cols = append(cols, d.Column(f))
		}
	}
	return cols
}

// ListAll unions the projected rows of every variant. People registered
// under several variants appear once per variant.
func (a *Aggregator) ListAll(ctx context.Context, f Filter, p Page) (*Listing, error) {
	p = p.Normalize()

	variants := schema.Variants
	if src := strings.TrimSpace(f.Source); src != "" {
		v, err := schema.ParseVariant(src)
		if err != nil {
			return nil, err
		}
		variants = []schema.Variant{v}
	}

	term := strings.ToLower(strings.TrimSpace(f.Query))
	queries := make([]repository.ListQuery, len(variants))
	for i, v := range variants {
		queries[i] = listQuery(schema.For(v), term)
	}

	counts := make([]int64, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		d := schema.For(v)
		g.Go(func() error {
			n, err := a.repo.Count(gctx, d, queries[i])
			counts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Listing{
		Data:    []projector.View{},
		Page:    p.Page,
		PerPage: p.PerPage,
	}
	for _, n := range counts {
		out.Total += int(n)
	}
	out.LastPage = max((out.Total+p.PerPage-1)/p.PerPage, 1)
	if p.Page > out.LastPage {
		return out, nil
	}

	// The first Page*PerPage rows of the union are among the first
	// Page*PerPage rows of each variant.
	limit := p.Page * p.PerPage
	perVariant := make([][]projector.View, len(variants))
	g, gctx = errgroup.WithContext(ctx)
	for i, v := range variants {
		d := schema.For(v)
		q := queries[i]
		q.Limit = limit
		g.Go(func() error {
			rows, err := a.repo.List(gctx, d, q)
			if err != nil {
				return err
			}
			views := make([]projector.View, 0, len(rows))
			for _, row := range rows {
				views = append(views, a.projector.ForRead(d, row))
			}
			perVariant[i] = views
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := make([]projector.View, 0, limit)
	for _, views := range perVariant {
		all = append(all, views...)
	}
	SortViews(all)

	start := min((p.Page-1)*p.PerPage, len(all))
	end := min(start+p.PerPage, len(all))
	out.Data = all[start:end]
	return out, nil
}

// listQuery searches name, email and phone. A term naming the variant itself
// matches every row of that variant.
func listQuery(d *schema.Descriptor, term string) repository.ListQuery {
	q := repository.ListQuery{Columns: summaryColumns(d)}
	if term == "" || strings.Contains(string(d.Variant), term) {
		return q
	}
	for _, f := range searchFields {
		if d.Has(f) {
			q.Search = append(q.Search, d.Column(f))
		}
	}
	q.Term = term
	return q
}

// SortViews orders by created_at descending, then variant priority, then id
// descending. Rows without a timestamp sort last.
func SortViews(views []projector.View) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		at, bt := createdAt(a), createdAt(b)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		if pa, pb := a.Source.Priority(), b.Source.Priority(); pa != pb {
			return pa < pb
		}
		return a.ID > b.ID
	})
}

func createdAt(v projector.View) time.Time {
	if v.CreatedAt == nil {
		return time.Time{}
	}
	return *v.CreatedAt
}

// FindByIdentity looks up an applicant by email or username in every variant.
func (a *Aggregator) FindByIdentity(ctx context.Context, identity string) (map[schema.Variant][]projector.View, error) {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if identity == "" {
		return nil, apperr.Validation("Email atau username wajib diisi")
	}

	found := make([][]projector.View, len(schema.Variants))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range schema.Variants {
		d := schema.For(v)
		g.Go(func() error {
			rows, err := a.repo.FindByIdentity(gctx, d, identity)
			if err != nil {
				return err
			}
			for _, row := range rows {
				found[i] = append(found[i], a.projector.ForRead(d, row))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[schema.Variant][]projector.View, len(schema.Variants))
	for i, v := range schema.Variants {
		out[v] = found[i]
		if out[v] == nil {
			out[v] = []projector.View{}
		}
	}
	return out, nil
}

func (a *Aggregator) Summary(ctx context.Context) (*Summary, error) {
	counts := make([]map[string]int64, len(schema.Variants))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range schema.Variants {
		d := schema.For(v)
		g.Go(func() error {
			c, err := a.repo.CountByPaymentStatus(gctx, d)
			counts[i] = c
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Summary{Variants: make(map[schema.Variant]Counts, len(schema.Variants))}
	for i, v := range schema.Variants {
		var c Counts
		for status, n := range counts[i] {
			c.Total += n
			switch status {
			case StatusPaid:
				c.Paid += n
			case StatusPending:
				c.Pending += n
			}
		}
		out.Variants[v] = c
		out.Total.Total += c.Total
		out.Total.Paid += c.Paid
		out.Total.Pending += c.Pending
	}
	return out, nil
}
