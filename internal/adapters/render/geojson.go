package render

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/samirrijal/poimap/internal/core/domain"
)

// MaxZoom is the deepest zoom level clusters are computed for.
const MaxZoom = 22

// Cluster is a group of markers of one variant falling in the same map tile.
type Cluster struct {
	Tile   string            `json:"tile"`
	Count  int               `json:"count"`
	Center domain.Coordinate `json:"center"`
	Bounds domain.Bounds     `json:"bounds"`
	Keys   []string          `json:"keys"`
}

func point(c domain.Coordinate) orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// MarkersGeoJSON returns every mounted marker as a point feature.
func (c *Canvas) MarkersGeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range c.Markers() {
		f := geojson.NewFeature(point(m.Position))
		f.ID = string(m.Handle)
		f.Properties["handle"] = string(m.Handle)
		f.Properties["variant"] = string(m.Variant)
		f.Properties["key"] = m.Key
		fc.Append(f)
	}
	return fc
}

// Clusters groups the markers of a variant's overlay by the map tile they
// fall in at zoom.
func (c *Canvas) Clusters(variant domain.Variant, zoom int) ([]Cluster, error) {
	if zoom < 0 || zoom > MaxZoom {
		return nil, fmt.Errorf("zoom %d outside 0..%d", zoom, MaxZoom)
	}
	handles := c.overlay(variant).Handles()

	c.mu.Lock()
	groups := make(map[maptile.Tile][]*marker)
	for _, h := range handles {
		m, ok := c.markers[h]
		if !ok {
			continue
		}
		t := maptile.At(point(m.Position), maptile.Zoom(zoom))
		groups[t] = append(groups[t], m)
	}
	c.mu.Unlock()

	out := make([]Cluster, 0, len(groups))
	for t, ms := range groups {
		pts := make(orb.MultiPoint, 0, len(ms))
		keys := make([]string, 0, len(ms))
		var sumLat, sumLng float64
		for _, m := range ms {
			pts = append(pts, point(m.Position))
			keys = append(keys, m.Key)
			sumLat += m.Position.Lat
			sumLng += m.Position.Lng
		}
		sort.Strings(keys)
		b := pts.Bound()
		n := float64(len(ms))
		out = append(out, Cluster{
			Tile:   fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y),
			Count:  len(ms),
			Center: domain.Coordinate{Lat: sumLat / n, Lng: sumLng / n},
			Bounds: domain.Bounds{MinLat: b.Min.Lat(), MinLng: b.Min.Lon(), MaxLat: b.Max.Lat(), MaxLng: b.Max.Lon()},
			Keys:   keys,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tile < out[j].Tile })
	return out, nil
}

// ClustersGeoJSON renders Clusters as point features carrying count and bbox.
func (c *Canvas) ClustersGeoJSON(variant domain.Variant, zoom int) (*geojson.FeatureCollection, error) {
	clusters, err := c.Clusters(variant, zoom)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	for _, cl := range clusters {
		f := geojson.NewFeature(point(cl.Center))
		f.ID = cl.Tile
		f.BBox = geojson.NewBBox(orb.Bound{
			Min: orb.Point{cl.Bounds.MinLng, cl.Bounds.MinLat},
			Max: orb.Point{cl.Bounds.MaxLng, cl.Bounds.MaxLat},
		})
		f.Properties["variant"] = string(variant)
		f.Properties["count"] = cl.Count
		f.Properties["tile"] = cl.Tile
		f.Properties["keys"] = cl.Keys
		fc.Append(f)
	}
	return fc, nil
}
