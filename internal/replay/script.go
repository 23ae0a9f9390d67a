// Package replay drives a tracker from a scripted sequence of host and
// browser signals, either on a virtual clock or in real time.
package replay

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gosight/slidetrack/internal/tracker"
)

const (
	SignalSlide      = "slide"
	SignalActivity   = "activity"
	SignalVisibility = "visibility"
	SignalUnload     = "unload"
)

// Slide names a slide shown by the host carousel
type Slide struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// Step is one signal delivered at an offset from session start
type Step struct {
	At     time.Duration `yaml:"at"`
	Signal string        `yaml:"signal"`
	Slide  string        `yaml:"slide"`
	Title  string        `yaml:"title"`
	Kind   string        `yaml:"kind"`
	Hidden bool          `yaml:"hidden"`
	Reason string        `yaml:"reason"`
}

// Script is a replayable viewing session
type Script struct {
	CustomerID   string `yaml:"customer_id"`
	InitialSlide Slide  `yaml:"initial_slide"`
	Steps        []Step `yaml:"steps"`
}

// Load reads and validates a YAML script
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that steps are in time order and name known signals.
// Nothing may follow an unload.
func (s *Script) Validate() error {
	var last time.Duration
	for i, step := range s.Steps {
		if step.At < last {
			return fmt.Errorf("step %d: at %s is before previous step at %s", i, step.At, last)
		}
		last = step.At

		if _, err := step.ToSignal(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if step.Signal == SignalUnload && i != len(s.Steps)-1 {
			return fmt.Errorf("step %d: unload must be the last step", i)
		}
	}
	return nil
}

// ToSignal converts the step to the tracker signal it stands for
func (s Step) ToSignal() (tracker.Signal, error) {
	switch s.Signal {
	case SignalSlide:
		if s.Slide == "" {
			return nil, fmt.Errorf("slide signal without slide id")
		}
		return tracker.SlideChanged{SlideID: s.Slide, Title: s.Title}, nil

	case SignalActivity:
		kind := tracker.ActivityKind(s.Kind)
		switch kind {
		case "":
			kind = tracker.ActivityClick
		case tracker.ActivityClick, tracker.ActivityScroll, tracker.ActivityKeyDown, tracker.ActivityPointerMove:
		default:
			return nil, fmt.Errorf("unknown activity kind %q", s.Kind)
		}
		return tracker.Activity{Kind: kind}, nil

	case SignalVisibility:
		return tracker.VisibilityChanged{Hidden: s.Hidden}, nil

	case SignalUnload:
		return tracker.Unload{Reason: s.Reason}, nil
	}
	return nil, fmt.Errorf("unknown signal %q", s.Signal)
}
