package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncshop/catalog-audit/internal/feed"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "abc-12", Key("  ABC-12 "))
	assert.Equal(t, "", Key("   "))
}

func TestPrice(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		present bool
		ok      bool
	}{
		{raw: "10", want: "10.00", present: true, ok: true},
		{raw: "$1,299.5", want: "1299.50", present: true, ok: true},
		{raw: "€12", want: "12.00", present: true, ok: true},
		{raw: "£12.50", want: "12.50", present: true, ok: true},
		{raw: "₹\u00a01,000", want: "1000.00", present: true, ok: true},
		{raw: "12 EUR", ok: false},
		{raw: " 0 ", want: "0.00", present: true, ok: true},
		{raw: "", ok: true},
		{raw: "NaN", ok: true},
		{raw: "None", ok: true},
		{raw: "null", ok: true},
		{raw: "abc", ok: false},
		{raw: "1.2.3", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v, ok := Price(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.present, v.Valid)
			if tt.present {
				assert.Equal(t, tt.want, v.Decimal.StringFixed(2))
			}
		})
	}
}

func TestPrice_ZeroIsNotAbsent(t *testing.T) {
	zero, _ := Price("0.00")
	absent, _ := Price("")
	assert.True(t, zero.Valid)
	assert.False(t, absent.Valid)
	assert.Equal(t, "0.00", FormatPrice(zero))
	assert.Equal(t, "", FormatPrice(absent))
}

func TestQuantity(t *testing.T) {
	q, ok := Quantity("5.0")
	require.True(t, ok)
	require.NotNil(t, q)
	assert.Equal(t, 5, *q)

	q, ok = Quantity("")
	assert.True(t, ok)
	assert.Nil(t, q)

	q, ok = Quantity("lots")
	assert.False(t, ok)
	assert.Nil(t, q)
}

func TestTags(t *testing.T) {
	assert.Equal(t, []string{"clearance", "oversize", "big box"}, Tags(" Clearance, OVERSIZE ,, Big Box"))
	assert.Nil(t, Tags(""))
	assert.Nil(t, Tags("nan"))
	assert.True(t, HasTag(Tags("a, Overweight"), "oversize", "overweight"))
	assert.False(t, HasTag(nil, "clearance"))
}

func TestSortedTags(t *testing.T) {
	assert.Equal(t, "a, b, c", SortedTags([]string{"c", "a", "b"}))
	assert.Equal(t, "None", SortedTags(nil))
}

func TestSourceRows(t *testing.T) {
	tbl, err := feed.Parse("clearance.csv", []byte(
		"SKU,Handle,Price,Compare At Price,Tags,Variant Inventory Qty\n"+
			" ABC ,widget,$10.00,oops,\"Sale, Oversize\",3\n"+
			",orphan,1,2,,\n"+
			"def,,nan,,,many\n"))
	require.NoError(t, err)

	rows, warns := SourceRows(tbl)
	require.Len(t, rows, 2)

	abc := rows[0]
	assert.Equal(t, "ABC", abc.SKU)
	assert.Equal(t, "abc", abc.Key)
	assert.Equal(t, "widget", abc.Handle)
	assert.Equal(t, "10.00", FormatPrice(abc.Price))
	assert.False(t, abc.CompareAt.Valid)
	assert.Equal(t, []string{"sale", "oversize"}, abc.Tags)
	require.NotNil(t, abc.Inventory)
	assert.Equal(t, 3, *abc.Inventory)
	assert.Equal(t, "widget", abc.Field("handle"))
	assert.Contains(t, abc.Fields, "templateSuffix")

	def := rows[1]
	assert.False(t, def.Price.Valid)
	assert.Nil(t, def.Inventory)

	var msgs []string
	for _, w := range warns {
		msgs = append(msgs, w.String())
	}
	require.Len(t, warns, 3, "%v", msgs)
	assert.Equal(t, "compareAtPrice", warns[0].Field)
	assert.Equal(t, "oops", warns[0].Value)
	assert.Contains(t, warns[1].Message, "no sku")
	assert.Equal(t, "inventory", warns[2].Field)
}
