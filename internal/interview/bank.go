package interview

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultQuestions is the built-in question bank.
var DefaultQuestions = []string{
	"你最近完成的一件最有成就感的事是什么？你在其中扮演了什么角色？",
	"请讲讲一次你解决冲突或困难的经历。",
	"如果你加入一个你不熟悉的项目团队，你会如何快速融入？",
}

// Bank is the YAML layout of a question bank file:
//
//	questions:
//	  - 请做一个简单的自我介绍。
//	  - 你为什么想加入我们？
type Bank struct {
	Questions []string `yaml:"questions"`
}

// LoadQuestions reads a question bank file. An empty path yields the defaults.
func LoadQuestions(path string) ([]string, error) {
	if path == "" {
		return append([]string(nil), DefaultQuestions...), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading question bank %s: %w", path, err)
	}

	var bank Bank
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("parsing question bank: %w", err)
	}
	if err := bank.validate(); err != nil {
		return nil, fmt.Errorf("validating question bank: %w", err)
	}
	return bank.Questions, nil
}

func (b *Bank) validate() error {
	if len(b.Questions) == 0 {
		return fmt.Errorf("questions must not be empty")
	}
	for i, q := range b.Questions {
		q = strings.TrimSpace(q)
		if q == "" {
			return fmt.Errorf("question %d is blank", i+1)
		}
		b.Questions[i] = q
	}
	return nil
}
