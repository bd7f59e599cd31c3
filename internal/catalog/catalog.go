// Package catalog defines the transcode parameter table. Template specs may
// only reference parameters listed here, and the stream worker turns them
// into ffmpeg arguments using the flag templates.
package catalog

import (
	"fmt"
	"os"

	"github.com/nukevideo/nukevideo/internal/models"
	"gopkg.in/yaml.v3"
)

// Parameter is one named transcode option.
type Parameter struct {
	// Name is the key used in template specs and stream params.
	Name string `yaml:"name"`

	// Flag is the ffmpeg argument template. A %s placeholder is replaced
	// with the parameter value. Boolean parameters without a placeholder
	// emit the flag verbatim.
	Flag string `yaml:"flag"`

	// Kinds lists the stream kinds the parameter applies to.
	Kinds []string `yaml:"kinds"`

	// Boolean parameters emit their flag only when the value is true.
	Boolean bool `yaml:"boolean,omitempty"`
}

// AppliesTo returns true if the parameter is valid for the given stream kind.
func (p Parameter) AppliesTo(kind models.StreamKind) bool {
	for _, k := range p.Kinds {
		if k == string(kind) {
			return true
		}
	}
	return false
}

// Catalog is an ordered set of parameters. Order is preserved so generated
// ffmpeg argument lists stay deterministic.
type Catalog struct {
	params []Parameter
	byName map[string]int
}

// New builds a catalog from a parameter list. Later duplicates override
// earlier entries in place.
func New(params []Parameter) *Catalog {
	c := &Catalog{byName: make(map[string]int, len(params))}
	for _, p := range params {
		if i, ok := c.byName[p.Name]; ok {
			c.params[i] = p
			continue
		}
		c.byName[p.Name] = len(c.params)
		c.params = append(c.params, p)
	}
	return c
}

// Default returns the built-in parameter table.
func Default() *Catalog {
	return New(defaultParameters())
}

// Load reads a YAML parameter file and merges it over the built-in table.
// An empty path returns the defaults unchanged.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameter catalog: %w", err)
	}

	var file struct {
		Parameters []Parameter `yaml:"parameters"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing parameter catalog: %w", err)
	}

	for _, p := range file.Parameters {
		if p.Name == "" || p.Flag == "" {
			return nil, fmt.Errorf("parameter catalog entry missing name or flag")
		}
	}

	return New(append(defaultParameters(), file.Parameters...)), nil
}

// Get returns the parameter with the given name.
func (c *Catalog) Get(name string) (Parameter, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Parameter{}, false
	}
	return c.params[i], true
}

// ForKind returns the parameters applicable to a stream kind, in table order.
func (c *Catalog) ForKind(kind models.StreamKind) []Parameter {
	var out []Parameter
	for _, p := range c.params {
		if p.AppliesTo(kind) {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of parameters in the catalog.
func (c *Catalog) Len() int {
	return len(c.params)
}

// defaultParameters is the built-in table. Video parameters also apply to
// muxed downloads, which carry both video and audio tracks.
func defaultParameters() []Parameter {
	videoKinds := []string{string(models.StreamKindVideo), string(models.StreamKindDownload)}
	audioKinds := []string{string(models.StreamKindAudio), string(models.StreamKindDownload)}

	return []Parameter{
		{Name: "video_codec", Flag: "-c:v %s", Kinds: videoKinds},
		{Name: "resolution", Flag: "-vf scale=-2:%s", Kinds: videoKinds},
		{Name: "video_bitrate", Flag: "-b:v %s", Kinds: videoKinds},
		{Name: "maxrate", Flag: "-maxrate %s", Kinds: videoKinds},
		{Name: "bufsize", Flag: "-bufsize %s", Kinds: videoKinds},
		{Name: "crf", Flag: "-crf %s", Kinds: videoKinds},
		{Name: "preset", Flag: "-preset %s", Kinds: videoKinds},
		{Name: "profile", Flag: "-profile:v %s", Kinds: videoKinds},
		{Name: "level", Flag: "-level:v %s", Kinds: videoKinds},
		{Name: "pixel_format", Flag: "-pix_fmt %s", Kinds: videoKinds},
		{Name: "framerate", Flag: "-r %s", Kinds: videoKinds},
		{Name: "keyframe_interval", Flag: "-g %s", Kinds: videoKinds},
		{Name: "tune", Flag: "-tune %s", Kinds: videoKinds},
		{Name: "two_pass_null", Flag: "-pass %s", Kinds: videoKinds},

		{Name: "audio_codec", Flag: "-c:a %s", Kinds: audioKinds},
		{Name: "audio_bitrate", Flag: "-b:a %s", Kinds: audioKinds},
		{Name: "channels", Flag: "-ac %s", Kinds: audioKinds},
		{Name: "sample_rate", Flag: "-ar %s", Kinds: audioKinds},
		{Name: "normalize", Flag: "-af loudnorm", Kinds: audioKinds, Boolean: true},
	}
}
