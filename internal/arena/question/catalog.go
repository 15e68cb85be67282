package question

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var defaultFiles embed.FS

// Catalog serves questions from an embedded default bank plus an
// optional override directory of yaml files. Difficulty ramps with the
// round number: early rounds draw easy questions, late rounds hard ones.
type Catalog struct {
	mu   sync.Mutex
	rng  *rand.Rand
	bank map[Difficulty][]Question
}

type catalogFile struct {
	Questions []Question `yaml:"questions"`
}

// NewCatalog loads the embedded bank and then applies yaml files from
// dir, if given. Override files extend the bank; they do not replace it.
func NewCatalog(dir string, seed int64) (*Catalog, error) {
	c := &Catalog{
		rng:  rand.New(rand.NewSource(seed)),
		bank: make(map[Difficulty][]Question),
	}
	raw, err := fs.ReadFile(defaultFiles, "questions.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded questions: %w", err)
	}
	if err := c.applyYAML(raw); err != nil {
		return nil, fmt.Errorf("embedded questions: %w", err)
	}
	if strings.TrimSpace(dir) != "" {
		if err := c.applyDir(dir); err != nil {
			return nil, err
		}
	}
	for _, d := range []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard} {
		if len(c.bank[d]) == 0 {
			return nil, fmt.Errorf("question bank has no %s questions", d)
		}
	}
	return c, nil
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read question dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := c.applyYAML(b); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (c *Catalog) applyYAML(raw []byte) error {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return err
	}
	for _, q := range f.Questions {
		if strings.TrimSpace(q.ID) == "" || strings.TrimSpace(q.Prompt) == "" {
			return fmt.Errorf("question missing id or prompt: %+v", q)
		}
		switch q.Difficulty {
		case DifficultyEasy, DifficultyMedium, DifficultyHard:
		default:
			return fmt.Errorf("question %s: unknown difficulty %q", q.ID, q.Difficulty)
		}
		switch q.Type {
		case TypeChoice, TypeShort, TypeEssay:
		default:
			return fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
		}
		c.bank[q.Difficulty] = append(c.bank[q.Difficulty], q)
	}
	return nil
}

// DifficultyForRound maps a 1-based round number onto a difficulty tier.
// Five-round matches play easy/easy/medium/medium/hard.
func DifficultyForRound(roundNumber int) Difficulty {
	switch {
	case roundNumber <= 2:
		return DifficultyEasy
	case roundNumber <= 4:
		return DifficultyMedium
	default:
		return DifficultyHard
	}
}

// Next draws a random question of the round's difficulty.
func (c *Catalog) Next(_ context.Context, roundNumber int) (Question, error) {
	if roundNumber < 1 {
		return Question{}, errors.New("round number must be >= 1")
	}
	d := DifficultyForRound(roundNumber)
	c.mu.Lock()
	defer c.mu.Unlock()
	pool := c.bank[d]
	return pool[c.rng.Intn(len(pool))], nil
}
