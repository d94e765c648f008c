package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Lexicon holds the externally configured word and phrase sets the pipeline
// matches against. A loaded Lexicon is immutable; reloads swap the whole
// value.
type Lexicon struct {
	Abusive               []string `yaml:"abusive"`
	Greetings             []string `yaml:"greetings"`
	Thanks                []string `yaml:"thanks"`
	HedgePhrases          []string `yaml:"hedge_phrases"`
	EnumerationKeywords   []string `yaml:"enumeration_keywords"`
	CorroboratingKeywords []string `yaml:"corroborating_keywords"`
	VagueReferences       []string `yaml:"vague_references"`
	MedicalSubjects       []string `yaml:"medical_subjects"`
}

// DefaultLexicon returns the built-in phrase sets used when no lexicon file
// is present or a reload produces an empty set.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		Abusive:   []string{"idiot", "stupid", "dumb", "shut up", "useless"},
		Greetings: []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening"},
		Thanks:    []string{"thanks", "thank you", "thankyou", "thx"},
		HedgePhrases: []string{
			"sorry", "don't know", "do not know", "cannot find", "can't find",
			"couldn't find", "need more information", "not sure", "unable to",
		},
		EnumerationKeywords:   []string{"type", "types", "list", "what are", "kinds", "kind"},
		CorroboratingKeywords: []string{"type", "types", "kind", "kinds", "explain"},
		VagueReferences: []string{
			"tell me about it",
			"it", "that", "those", "these", "them",
		},
		MedicalSubjects: []string{
			"diabetes", "hypertension", "asthma", "arthritis", "migraine",
			"anemia", "depression", "anxiety", "obesity", "cancer",
			"fever", "cough", "fatigue", "insomnia", "allergy",
		},
	}
}

// LexiconStore serves the current lexicon and hot-reloads it when the
// backing file changes.
type LexiconStore struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}

	mu      sync.RWMutex
	current *Lexicon
}

// NewLexiconStore loads the lexicon file once. A missing file is not an
// error; the built-in defaults are used instead.
func NewLexiconStore(path string, logger *zap.Logger) (*LexiconStore, error) {
	s := &LexiconStore{
		path:    path,
		logger:  logger,
		stopCh:  make(chan struct{}),
		current: DefaultLexicon(),
	}

	lex, err := loadLexiconFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("Lexicon file not found, using defaults", zap.String("path", path))
			return s, nil
		}
		return nil, fmt.Errorf("load lexicon: %w", err)
	}
	s.current = lex
	logger.Info("Lexicon loaded", zap.String("path", path))
	return s, nil
}

// Get returns the current lexicon snapshot.
func (s *LexiconStore) Get() *Lexicon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Watch starts watching the lexicon file's directory and reloads on change.
func (s *LexiconStore) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch lexicon dir: %w", err)
	}
	s.watcher = watcher

	go s.watchLoop()
	s.logger.Info("Lexicon watcher started", zap.String("path", s.path))
	return nil
}

// Stop stops the watcher if one is running.
func (s *LexiconStore) Stop() {
	close(s.stopCh)
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
}

func (s *LexiconStore) watchLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Lexicon watcher error", zap.Error(err))
		}
	}
}

func (s *LexiconStore) reload() {
	lex, err := loadLexiconFile(s.path)
	if err != nil {
		s.logger.Warn("Lexicon reload failed, keeping previous sets",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return
	}

	s.mu.Lock()
	s.current = lex
	s.mu.Unlock()

	s.logger.Info("Lexicon reloaded", zap.String("path", s.path))
}

func loadLexiconFile(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("unmarshal lexicon: %w", err)
	}

	// Missing sections fall back to defaults so a partial file cannot
	// silently disable a filter.
	def := DefaultLexicon()
	if len(lex.Abusive) == 0 {
		lex.Abusive = def.Abusive
	}
	if len(lex.Greetings) == 0 {
		lex.Greetings = def.Greetings
	}
	if len(lex.Thanks) == 0 {
		lex.Thanks = def.Thanks
	}
	if len(lex.HedgePhrases) == 0 {
		lex.HedgePhrases = def.HedgePhrases
	}
	if len(lex.EnumerationKeywords) == 0 {
		lex.EnumerationKeywords = def.EnumerationKeywords
	}
	if len(lex.CorroboratingKeywords) == 0 {
		lex.CorroboratingKeywords = def.CorroboratingKeywords
	}
	if len(lex.VagueReferences) == 0 {
		lex.VagueReferences = def.VagueReferences
	}
	if len(lex.MedicalSubjects) == 0 {
		lex.MedicalSubjects = def.MedicalSubjects
	}
	return &lex, nil
}
