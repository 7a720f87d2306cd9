package osm

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"

	"github.com/qedus/osmpbf"
	"go.uber.org/zap"

	"kuanb/gosm-matcher/road"
)

var highwayTypesList = []string{
	"motorway",
	"motorway_link",
	"trunk",
	"trunk_link",
	"primary",
	"primary_link",
	"secondary",
	"secondary_link",
	"tertiary",
	"tertiary_link",
	"residential",
	"service",
	"living_street",
	"unclassified",
}

// LoadSegments reads an .osm.pbf file into road segments.
func LoadSegments(filePath string, log *zap.Logger) ([]road.Segment, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open osm file: %w", err)
	}
	defer f.Close()

	return DecodeSegments(f, log)
}

// DecodeSegments decodes a PBF stream. Only drivable ways (by highway tag) are
// kept and segments come out ordered by way ID, then node order.
func DecodeSegments(r io.Reader, log *zap.Logger) ([]road.Segment, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d := osmpbf.NewDecoder(r)

	// use more memory from the start, it is faster
	d.SetBufferSize(osmpbf.MaxBlobSize)

	// start decoding with several goroutines, it is faster
	if err := d.Start(runtime.GOMAXPROCS(-1)); err != nil {
		return nil, fmt.Errorf("start osm decoder: %w", err)
	}

	var nc, wc, rc uint64
	nodes := make(map[OsmNodeId]*OsmNode)
	ways := make(map[OsmWayId]*OsmWay)

	for {
		v, err := d.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode osm: %w", err)
		}
		switch v := v.(type) {
		case *osmpbf.Node:
			nodes[OsmNodeId(v.ID)] = &OsmNode{
				ID:  OsmNodeId(v.ID),
				Lat: v.Lat,
				Lon: v.Lon,
			}
			nc++
		case *osmpbf.Way:
			nodeIDs := make([]OsmNodeId, len(v.NodeIDs))
			for i, id := range v.NodeIDs {
				nodeIDs[i] = OsmNodeId(id)
			}
			ways[OsmWayId(v.ID)] = &OsmWay{
				ID:      OsmWayId(v.ID),
				Highway: v.Tags["highway"],
				Nodes:   nodeIDs,
			}
			wc++
		case *osmpbf.Relation:
			// relations carry no road geometry of their own
			rc++
		default:
			return nil, fmt.Errorf("unknown osm type %T", v)
		}
	}
	log.Info("decoded osm data", zap.Uint64("nodes", nc), zap.Uint64("ways", wc), zap.Uint64("relations", rc))

	segments := BuildSegments(nodes, ways)
	log.Info("built road segments", zap.Int("segments", len(segments)))
	return segments, nil
}

// BuildSegments keeps whitelisted ways and splits them into segments.
func BuildSegments(nodes map[OsmNodeId]*OsmNode, ways map[OsmWayId]*OsmWay) []road.Segment {
	// Build set for highwayTypesList for fast lookup
	whitelistedHighways := make(map[string]struct{}, len(highwayTypesList))
	for _, hw := range highwayTypesList {
		whitelistedHighways[hw] = struct{}{}
	}

	ids := make([]OsmWayId, 0, len(ways))
	for id, way := range ways {
		if _, ok := whitelistedHighways[way.Highway]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var segments []road.Segment
	for _, id := range ids {
		segments = append(segments, ways[id].Segments(nodes)...)
	}
	return segments
}
