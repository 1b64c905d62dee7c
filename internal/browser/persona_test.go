package browser

import (
	"testing"

	"github.com/chromedp/cdproto/emulation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/bulwark/internal/config"
)

func TestPersona_Tasks(t *testing.T) {
	t.Run("defaults pin timezone locale and language", func(t *testing.T) {
		p := PersonaFromConfig(config.NewDefaultConfig().Browser())
		tasks := p.Tasks()
		require.Len(t, tasks, 3)
		tz, ok := tasks[0].(*emulation.SetTimezoneOverrideParams)
		require.True(t, ok)
		assert.Equal(t, "UTC", tz.TimezoneID)
		locale, ok := tasks[1].(*emulation.SetLocaleOverrideParams)
		require.True(t, ok)
		assert.Equal(t, "en-US", locale.Locale)
	})

	t.Run("user agent carries the accept language", func(t *testing.T) {
		p := Persona{UserAgent: "bulwark-test", Languages: []string{"de-DE", "de", "en"}}
		tasks := p.Tasks()
		require.Len(t, tasks, 2)
		ua, ok := tasks[0].(*emulation.SetUserAgentOverrideParams)
		require.True(t, ok)
		assert.Equal(t, "bulwark-test", ua.UserAgent)
		assert.Equal(t, "de-DE,de,en", ua.AcceptLanguage)
	})

	t.Run("empty persona changes nothing", func(t *testing.T) {
		assert.Empty(t, Persona{}.Tasks())
	})
}

func TestPersona_AcceptLanguage(t *testing.T) {
	assert.Equal(t, "", Persona{}.acceptLanguage())
	assert.Equal(t, "en-US", Persona{Languages: []string{"en-US"}}.acceptLanguage())
	assert.Equal(t, "en-US,en;q=0.9,fr;q=0.8", Persona{Languages: []string{"en-US", "en", "fr"}}.acceptLanguage())
}
