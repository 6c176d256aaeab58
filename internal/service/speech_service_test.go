package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newSpeechFixture(synth *fakeSynth) (SpeechService, *memAudioStore, *memUsageRepo) {
	store := newMemAudioStore()
	usageRepo := newMemUsageRepo()
	usage := NewUsageService(usageRepo, &recordingMailer{}, 10000)
	return NewSpeechService(synth, store, usage), store, usageRepo
}

func TestSynthesizeStoresAudioAndRecordsUsage(t *testing.T) {
	synth := &fakeSynth{}
	svc, store, usageRepo := newSpeechFixture(synth)

	res, err := svc.Synthesize(context.Background(), 42, "**Hello** there, friend.", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Object != "audio/response_42.mp3" || res.Voice != DefaultVoice {
		t.Errorf("result = %+v", res)
	}
	if len(synth.texts) != 1 || strings.Contains(synth.texts[0], "*") {
		t.Fatalf("synthesizer got %q", synth.texts)
	}
	if res.Characters != utf8.RuneCountInString(synth.texts[0]) {
		t.Errorf("characters = %d for %q", res.Characters, synth.texts[0])
	}
	if _, ok := store.objects[res.Object]; !ok {
		t.Errorf("audio object not stored")
	}
	month := time.Now().Format("2006-01")
	if got := usageRepo.rows[month].CharactersUsed; got != res.Characters {
		t.Errorf("usage = %d, want %d", got, res.Characters)
	}

	url, err := svc.AudioURL(context.Background(), res.Object)
	if err != nil || url != "https://audio.test/audio/response_42.mp3" {
		t.Errorf("AudioURL = %q, %v", url, err)
	}
}

func TestSynthesizeFailureStoresNothing(t *testing.T) {
	synth := &fakeSynth{err: errors.New("quota exceeded")}
	svc, store, usageRepo := newSpeechFixture(synth)

	if _, err := svc.Synthesize(context.Background(), 7, "Hello there.", VoiceAchernar); err == nil {
		t.Fatal("expected error")
	}
	if len(store.objects) != 0 || len(usageRepo.rows) != 0 {
		t.Errorf("failed synthesis must not store audio or usage")
	}
}

func TestSynthesizeSkipsCodeOnlyReply(t *testing.T) {
	synth := &fakeSynth{}
	svc, _, _ := newSpeechFixture(synth)

	_, err := svc.Synthesize(context.Background(), 7, "```go\nfmt.Println(1)\n```", VoiceAchernar)
	if !errors.Is(err, ErrNoSpeakableText) {
		t.Fatalf("err = %v", err)
	}
	if len(synth.texts) != 0 {
		t.Errorf("synthesizer should not be called")
	}
}
