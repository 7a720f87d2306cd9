package osm

import (
	"kuanb/gosm-matcher/road"
)

type OsmWayId int64

type OsmNodeId int64

type OsmNode struct {
	ID  OsmNodeId
	Lat float64
	Lon float64
}

type OsmWay struct {
	ID      OsmWayId
	Nodes   []OsmNodeId
	Highway string
}

// RoadType maps an OSM highway tag onto the road types the scorer knows.
func RoadType(highway string) string {
	switch highway {
	case "motorway", "motorway_link", "trunk", "trunk_link":
		return road.Highway
	case "service":
		return road.ServiceRoad
	}
	return highway
}

// Segments splits the way into one segment per consecutive node pair. Pairs with
// an unknown node are skipped.
func (w *OsmWay) Segments(nodes map[OsmNodeId]*OsmNode) []road.Segment {
	if len(w.Nodes) < 2 {
		return nil
	}
	roadType := RoadType(w.Highway)
	segments := make([]road.Segment, 0, len(w.Nodes)-1)
	for i := 0; i < len(w.Nodes)-1; i++ {
		a, okA := nodes[w.Nodes[i]]
		b, okB := nodes[w.Nodes[i+1]]
		if !okA || !okB {
			continue
		}
		segments = append(segments, road.Segment{
			StartLat: a.Lat,
			StartLon: a.Lon,
			EndLat:   b.Lat,
			EndLon:   b.Lon,
			RoadType: roadType,
		})
	}
	return segments
}
