package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/fsutil"
)

// inputFlags are the generation inputs accepted on the command line.
type inputFlags struct {
	file        string
	product     string
	description string
	offer       string
	audience    string
	platform    string
	tone        string
	extra       map[string]string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.file, "inputs", "i", "", "read inputs from a YAML or JSON file")
	fl.StringVar(&f.product, "product", "", "product name")
	fl.StringVar(&f.description, "description", "", "product description")
	fl.StringVar(&f.offer, "offer", "", "offer or promotion")
	fl.StringVar(&f.audience, "audience", "", "target audience")
	fl.StringVar(&f.platform, "platform", "", "target platform (tiktok, reels, youtube, ...)")
	fl.StringVar(&f.tone, "tone", "", "tone of voice")
	fl.StringToStringVar(&f.extra, "extra", nil, "additional inputs as key=value pairs")
}

// inputs merges the inputs file with the flags; flags win.
func (f *inputFlags) inputs() (core.Inputs, error) {
	var in core.Inputs
	if f.file != "" {
		data, err := fsutil.ReadFileScoped(f.file)
		if err != nil {
			return core.Inputs{}, fmt.Errorf("reading inputs: %w", err)
		}
		if err := yaml.Unmarshal(data, &in); err != nil {
			return core.Inputs{}, core.ErrValidation(core.CodeInvalidInputs,
				fmt.Sprintf("parsing inputs %s: %v", f.file, err)).WithCause(err)
		}
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&in.Product, f.product)
	override(&in.Description, f.description)
	override(&in.Offer, f.offer)
	override(&in.Audience, f.audience)
	override(&in.Platform, f.platform)
	override(&in.Tone, f.tone)
	if len(f.extra) > 0 {
		if in.Extra == nil {
			in.Extra = make(map[string]string, len(f.extra))
		}
		for k, v := range f.extra {
			in.Extra[k] = v
		}
	}
	return in, nil
}
