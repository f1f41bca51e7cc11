package gedi

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/example/go-gedi/gedi/sphere"
)

// ParseFootprint extracts a granule's bounding polygon from its ECHO
// metadata document. The metadata lists GPolygon boundary vertices in
// clockwise order; they are reversed here so the boundary winds
// counterclockwise, matching the orientation used for region polygons.
func ParseFootprint(data []byte) (*sphere.Boundary, error) {
	var lats, lons []float64

	decoder := xml.NewDecoder(bytes.NewReader(data))
	var field string
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gedi: parse metadata: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "PointLatitude", "PointLongitude":
				field = t.Name.Local
			}
		case xml.CharData:
			if field == "" {
				continue
			}
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("gedi: parse metadata %s %q: %w", field, text, err)
			}
			if field == "PointLatitude" {
				lats = append(lats, v)
			} else {
				lons = append(lons, v)
			}
		case xml.EndElement:
			field = ""
		}
	}

	if len(lats) != len(lons) {
		return nil, fmt.Errorf("gedi: metadata has %d latitudes but %d longitudes", len(lats), len(lons))
	}
	if len(lats) < 3 {
		return nil, fmt.Errorf("gedi: metadata polygon has %d vertices, need at least 3", len(lats))
	}

	vertices := make([]sphere.Point, 0, len(lats))
	for i := len(lats) - 1; i >= 0; i-- {
		p, err := sphere.NewPoint(lats[i], lons[i])
		if err != nil {
			return nil, fmt.Errorf("gedi: metadata vertex %d: %w", i, err)
		}
		vertices = append(vertices, p)
	}
	return sphere.NewBoundary(vertices)
}
