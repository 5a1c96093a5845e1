package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/fluency/internal/config"
	"github.com/MrWong99/fluency/pkg/provider/stt"
	sttmock "github.com/MrWong99/fluency/pkg/provider/stt/mock"
)

func TestRegistry_CreateSTT(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &sttmock.Transcriber{}
	var gotEntry config.ProviderEntry
	reg.RegisterSTT("mock", func(e config.ProviderEntry) (stt.Transcriber, error) {
		gotEntry = e
		return want, nil
	})

	entry := config.ProviderEntry{Name: "mock", Model: "m1"}
	got, err := reg.CreateSTT(entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("CreateSTT returned a different transcriber")
	}
	if gotEntry.Model != "m1" {
		t.Errorf("factory saw entry %+v", gotEntry)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	_, err := config.NewRegistry().CreateSTT(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("missing api key")
	reg.RegisterSTT("bad", func(config.ProviderEntry) (stt.Transcriber, error) { return nil, boom })

	_, err := reg.CreateSTT(config.ProviderEntry{Name: "bad"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped factory error", err)
	}
	if errors.Is(err, config.ErrProviderNotRegistered) {
		t.Error("factory error must not look like a missing registration")
	}
}

func TestRegistry_STTNames(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	for _, n := range []string{"whisper", "google", "deepgram"} {
		reg.RegisterSTT(n, func(config.ProviderEntry) (stt.Transcriber, error) { return nil, nil })
	}
	if got := reg.STTNames(); !slices.Equal(got, []string{"deepgram", "google", "whisper"}) {
		t.Errorf("STTNames() = %v", got)
	}
}
