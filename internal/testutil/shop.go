// Package testutil provides in-memory stand-ins for the feed source and the
// platform, loaded from fixtures. Stub mode binaries run on them too.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/syncshop/catalog-audit/internal/connectors/shopify"
	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/feed"
	"github.com/syncshop/catalog-audit/internal/normalize"
)

// StubVariant is one variant of a StubProduct.
type StubVariant struct {
	ID             string         `yaml:"id"`
	SKU            string         `yaml:"sku"`
	Price          string         `yaml:"price"`
	CompareAtPrice string         `yaml:"compare_at_price"`
	Inventory      map[string]int `yaml:"inventory"`
}

// StubProduct is one product of the stub catalog.
type StubProduct struct {
	ID              string         `yaml:"id"`
	Handle          string         `yaml:"handle"`
	Title           string         `yaml:"title"`
	Tags            []string       `yaml:"tags"`
	TemplateSuffix  string         `yaml:"template_suffix"`
	DescriptionHTML string         `yaml:"description_html"`
	MediaCount      int            `yaml:"media_count"`
	Variants        []*StubVariant `yaml:"variants"`
}

// StubShop is an in-memory shop. It answers catalog reads and applies the
// mutations the dispatcher and creation planner send.
type StubShop struct {
	LocationList []shopify.Location `yaml:"locations"`
	Products     []*StubProduct     `yaml:"products"`
	// Reject maps a SKU to the user error returned when its price is updated.
	Reject map[string]string `yaml:"reject"`

	mu        sync.Mutex
	mutations []string
	created   int
}

// FixturesDir returns the absolute path of the bundled fixtures.
func FixturesDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "fixtures")
}

// LoadStubShop reads a YAML catalog fixture.
func LoadStubShop(path string) (*StubShop, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("testutil: read shop fixture: %w", err)
	}
	var s StubShop
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("testutil: parse shop fixture %s: %w", path, err)
	}
	return &s, nil
}

// MustLoadStubShop loads the bundled shop fixture or panics.
func MustLoadStubShop() *StubShop {
	s, err := LoadStubShop(filepath.Join(FixturesDir(), "shop.yaml"))
	if err != nil {
		panic(err)
	}
	return s
}

// Mutations returns the operation names applied so far.
func (s *StubShop) Mutations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.mutations...)
}

func (s *StubShop) row(p *StubProduct, v *StubVariant, warns *[]domain.Warning) domain.PlatformRow {
	key := normalize.Key(v.SKU)
	raw := strings.Join(p.Tags, ", ")
	row := domain.PlatformRow{
		SKU:             v.SKU,
		Key:             key,
		VariantID:       v.ID,
		ProductID:       p.ID,
		InventoryItemID: strings.Replace(v.ID, "ProductVariant", "InventoryItem", 1),
		Handle:          p.Handle,
		Title:           p.Title,
		Price:           normalize.PlatformPrice(key, "price", v.Price, warns),
		CompareAt:       normalize.PlatformPrice(key, "compare_at_price", v.CompareAtPrice, warns),
		Tags:            normalize.Tags(raw),
		RawTags:         raw,
		TemplateSuffix:  p.TemplateSuffix,
		DescriptionHTML: p.DescriptionHTML,
	}
	total := 0
	if len(v.Inventory) > 0 {
		row.LocationQty = make(map[string]int, len(v.Inventory))
		for loc, n := range v.Inventory {
			row.LocationQty[loc] = n
			total += n
		}
	}
	row.InventoryQuantity = &total
	return row
}

// FetchByKeys returns the variants whose SKU is listed.
func (s *StubShop) FetchByKeys(_ context.Context, skus []string) (shopify.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]struct{}, len(skus))
	for _, sku := range skus {
		want[strings.TrimSpace(sku)] = struct{}{}
	}
	snap := shopify.Snapshot{Mode: domain.FetchSync}
	for _, p := range s.Products {
		for _, v := range p.Variants {
			if _, ok := want[v.SKU]; ok {
				snap.Rows = append(snap.Rows, s.row(p, v, &snap.Warnings))
			}
		}
	}
	return snap, nil
}

// FetchBulkSnapshot returns the whole catalog split by requested keys.
func (s *StubShop) FetchBulkSnapshot(_ context.Context, keys map[string]struct{}) (shopify.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := shopify.Snapshot{Mode: domain.FetchBulk}
	for _, p := range s.Products {
		if p.MediaCount > len(p.Variants) {
			snap.ExcessiveMedia = append(snap.ExcessiveMedia, domain.ExcessiveMedia{
				ProductID: p.ID, Handle: p.Handle, Title: p.Title,
				MediaCount: p.MediaCount, VariantCount: len(p.Variants),
			})
		}
		for _, v := range p.Variants {
			row := s.row(p, v, &snap.Warnings)
			if _, ok := keys[row.Key]; ok {
				snap.Rows = append(snap.Rows, row)
				continue
			}
			snap.StaleCandidates = append(snap.StaleCandidates, row)
		}
	}
	return snap, nil
}

// Locations returns the fixture locations.
func (s *StubShop) Locations(context.Context) ([]shopify.Location, error) {
	return append([]shopify.Location(nil), s.LocationList...), nil
}

func (s *StubShop) product(id string) *StubProduct {
	for _, p := range s.Products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

var opPattern = regexp.MustCompile(`(mut_\d+(?:_[a-z]+)?): (tagsAdd|tagsRemove|productUpdate)\(`)

// Execute applies a mutation to the catalog and answers in the platform's
// response shape. Unknown products produce user errors.
func (s *StubShop) Execute(_ context.Context, query string, vars map[string]any) (*shopify.Response, error) {
	var v map[string]any
	b, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("testutil: encode vars: %w", err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("testutil: decode vars: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var data any
	switch {
	case strings.Contains(query, "productVariantsBulkUpdate"):
		data = s.bulkUpdate(v)
	case strings.Contains(query, "productCreate("):
		data = s.create(v)
	case opPattern.MatchString(query):
		data = s.composite(query, v)
	default:
		return &shopify.Response{Errors: []shopify.GraphQLError{{Message: "unsupported operation"}}}, nil
	}
	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("testutil: encode response: %w", err)
	}
	return &shopify.Response{Data: out}, nil
}

func userError(field []any, msg string) map[string]any {
	return map[string]any{"field": field, "message": msg}
}

func (s *StubShop) bulkUpdate(v map[string]any) map[string]any {
	s.mutations = append(s.mutations, "productVariantsBulkUpdate")
	var errs []any
	p := s.product(fmt.Sprint(v["productId"]))
	if p == nil {
		errs = append(errs, userError([]any{"productId"}, "Product does not exist"))
	}
	variants, _ := v["variants"].([]any)
	if p == nil {
		variants = nil
	}
	for i, raw := range variants {
		in, _ := raw.(map[string]any)
		var target *StubVariant
		for _, pv := range p.Variants {
			if pv.ID == in["id"] {
				target = pv
			}
		}
		if target == nil {
			errs = append(errs, userError([]any{"variants", fmt.Sprint(i), "id"}, "Product variant does not exist"))
			continue
		}
		if msg, ok := s.Reject[target.SKU]; ok {
			errs = append(errs, userError([]any{"variants", fmt.Sprint(i), "price"}, msg))
			continue
		}
		if price, ok := in["price"]; ok {
			target.Price = fmt.Sprint(price)
		}
		if cmp, ok := in["compareAtPrice"]; ok {
			if cmp == nil {
				target.CompareAtPrice = ""
			} else {
				target.CompareAtPrice = fmt.Sprint(cmp)
			}
		}
	}
	return map[string]any{"productVariantsBulkUpdate": map[string]any{"userErrors": nonNil(errs)}}
}

func nonNil(errs []any) []any {
	if errs == nil {
		return []any{}
	}
	return errs
}

func (s *StubShop) composite(query string, v map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range opPattern.FindAllStringSubmatch(query, -1) {
		alias, op := m[1], m[2]
		s.mutations = append(s.mutations, op)
		var (
			errs []any
			p    *StubProduct
		)
		switch op {
		case "tagsAdd", "tagsRemove":
			p = s.product(fmt.Sprint(v[alias+"_id"]))
			if p == nil {
				errs = append(errs, userError([]any{"id"}, "Product does not exist"))
				break
			}
			tags, _ := v[alias+"_tags"].([]any)
			for _, t := range tags {
				p.Tags = applyTag(p.Tags, fmt.Sprint(t), op == "tagsAdd")
			}
		case "productUpdate":
			in, _ := v[alias+"_input"].(map[string]any)
			p = s.product(fmt.Sprint(in["id"]))
			if p == nil {
				errs = append(errs, userError([]any{"id"}, "Product does not exist"))
				break
			}
			if suffix, ok := in["templateSuffix"]; ok {
				p.TemplateSuffix = fmt.Sprint(suffix)
			}
			if html, ok := in["descriptionHtml"]; ok {
				p.DescriptionHTML = fmt.Sprint(html)
			}
		}
		out[alias] = map[string]any{"userErrors": nonNil(errs)}
	}
	return out
}

func applyTag(tags []string, tag string, add bool) []string {
	out := make([]string, 0, len(tags)+1)
	found := false
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			found = true
			if !add {
				continue
			}
		}
		out = append(out, t)
	}
	if add && !found {
		out = append(out, tag)
	}
	return out
}

func (s *StubShop) create(v map[string]any) map[string]any {
	s.mutations = append(s.mutations, "productCreate")
	in, _ := v["input"].(map[string]any)
	title := fmt.Sprint(in["title"])
	for _, p := range s.Products {
		if p.Title == title {
			return map[string]any{"productCreate": map[string]any{
				"product":    nil,
				"userErrors": []any{userError([]any{"title"}, "Title has already been taken")},
			}}
		}
	}
	s.created++
	p := &StubProduct{
		ID:     fmt.Sprintf("gid://shopify/Product/stub-%d", s.created),
		Handle: strings.ToLower(strings.ReplaceAll(title, " ", "-")),
		Title:  title,
		Tags:   normalize.Tags(fmt.Sprint(in["tags"])),
	}
	if suffix, ok := in["templateSuffix"].(string); ok {
		p.TemplateSuffix = suffix
	}
	variants, _ := in["variants"].([]any)
	for i, raw := range variants {
		vin, _ := raw.(map[string]any)
		sv := &StubVariant{
			ID:    fmt.Sprintf("gid://shopify/ProductVariant/stub-%d-%d", s.created, i),
			SKU:   fmt.Sprint(vin["sku"]),
			Price: fmt.Sprint(vin["price"]),
		}
		if cmp, ok := vin["compareAtPrice"].(string); ok {
			sv.CompareAtPrice = cmp
		}
		p.Variants = append(p.Variants, sv)
	}
	s.Products = append(s.Products, p)
	return map[string]any{"productCreate": map[string]any{
		"product":    map[string]any{"id": p.ID},
		"userErrors": []any{},
	}}
}

// MemorySource is a feed.Source over in-memory files.
type MemorySource struct {
	Files map[string]string
}

// NewMemorySource creates a source serving files by name.
func NewMemorySource(files map[string]string) *MemorySource {
	return &MemorySource{Files: files}
}

// FeedDir is the directory holding the bundled feed fixtures.
func FeedDir() string {
	return filepath.Join(FixturesDir(), "feeds")
}

// ListFiles returns the CSV file names, sorted.
func (m *MemorySource) ListFiles(context.Context) ([]string, error) {
	var names []string
	for n := range m.Files {
		if strings.EqualFold(filepath.Ext(n), ".csv") {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Fetch parses a stored file.
func (m *MemorySource) Fetch(_ context.Context, name string) (feed.Table, error) {
	data, ok := m.Files[name]
	if !ok {
		return feed.Table{}, fmt.Errorf("feed: fetch %q: file does not exist", name)
	}
	return feed.Parse(name, []byte(data))
}
