package shopify

import "context"

const locationsQuery = `query Locations {
  locations(first: 250) { edges { node { id name } } }
}`

// Location is a stock location of the shop.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Locations lists the shop's stock locations.
func (c *Client) Locations(ctx context.Context) ([]Location, error) {
	var out struct {
		Locations struct {
			Edges []struct {
				Node Location `json:"node"`
			} `json:"edges"`
		} `json:"locations"`
	}
	if err := c.query(ctx, locationsQuery, nil, &out); err != nil {
		return nil, err
	}
	locs := make([]Location, 0, len(out.Locations.Edges))
	for _, e := range out.Locations.Edges {
		locs = append(locs, e.Node)
	}
	return locs, nil
}
