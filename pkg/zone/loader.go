package zone

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Definition is one zone as written in a zone file.
type Definition struct {
	ID     int        `yaml:"id" json:"id" validate:"gt=0"`
	Name   string     `yaml:"name" json:"name" validate:"required"`
	Points []RawPoint `yaml:"points" json:"points" validate:"min=2"`
}

// File is the top-level layout of a zone file.
//
//	zones:
//	  - id: 1
//	    name: Lobby
//	    points: [[0, 0], [640, 0], [640, 480], [0, 480]]
//	  - id: 2
//	    name: Door
//	    points: [{x: 320, y: 0}, {x: 320, y: 480}]
type File struct {
	Zones []Definition `yaml:"zones" json:"zones" validate:"unique=ID,dive"`
}

// Load reads zones from a .yaml/.yml or .json file.
func Load(path string) ([]Zone, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read zone file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(cleanPath)); ext {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".json":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("zone file must be .yaml, .yml or .json, got %q", ext)
	}
}

// ParseYAML decodes and builds a YAML zone file.
func ParseYAML(data []byte) ([]Zone, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse zone YAML: %w", err)
	}
	return Build(f)
}

// ParseJSON accepts either {"zones": [...]} or a bare array of zones. A zone
// whose points are not an array fails with ErrNotArray.
func ParseJSON(data []byte) ([]Zone, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("failed to parse zone JSON: invalid document")
	}
	root := gjson.ParseBytes(data)
	list := root
	if root.IsObject() {
		list = root.Get("zones")
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("zone JSON has no zones array")
	}

	var f File
	var perr error
	list.ForEach(func(_, z gjson.Result) bool {
		pts, err := RawPointsFromJSON(z.Get("points"))
		if err != nil {
			perr = fmt.Errorf("zone %q: %w", z.Get("name").String(), err)
			return false
		}
		f.Zones = append(f.Zones, Definition{
			ID:     int(z.Get("id").Int()),
			Name:   z.Get("name").String(),
			Points: pts,
		})
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return Build(f)
}

// Build validates definitions and turns them into zones. Unusable points are
// dropped one by one; a zone left with fewer than two points fails the file.
func Build(f File) ([]Zone, error) {
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("invalid zone file: %w", err)
	}

	names := make(map[string]struct{}, len(f.Zones))
	zones := make([]Zone, 0, len(f.Zones))
	for _, d := range f.Zones {
		if _, ok := names[d.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, d.Name)
		}
		names[d.Name] = struct{}{}

		pts, dropped := NormalizePoints(d.Points)
		if dropped > 0 {
			log.WithFields(log.Fields{"zone": d.Name, "dropped": dropped}).Warn("dropped malformed zone points")
		}
		z, err := New(d.ID, d.Name, pts)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, nil
}
