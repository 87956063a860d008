package tts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseLanguage(t *testing.T) {
	assert.Equal(t, "zh", BaseLanguage("zh-CN"))
	assert.Equal(t, "en", BaseLanguage("en_US"))
	assert.Equal(t, "zh", BaseLanguage(" ZH "))
	assert.Equal(t, "", BaseLanguage(""))
}
