package driver

import "fmt"

// Profile declares everything service-specific about a chat UI: where it
// lives and which selector chains reach its interaction points. The
// generic uiDriver interprets a profile; adding a service means adding a
// profile, not code.
type Profile struct {
	// Service is the registry key.
	Service string
	// URL is the entry point to navigate to.
	URL string
	// Host is the substring of the page URL that confirms we are on the
	// service (skips redundant navigations).
	Host string

	// Input locates the prompt box.
	Input Chain
	// Submit locates the send/run button.
	Submit Chain
	// Response locates reply messages; the last match is the latest reply.
	Response Chain
	// LoginWall locates elements only shown to logged-out visitors.
	LoginWall Chain
	// Streaming locates in-progress indicators inside the latest reply.
	Streaming Chain
	// NewChat locates the fresh-conversation control, if any.
	NewChat Chain
	// ModelButton opens the model switcher; empty means the UI has none.
	ModelButton Chain
	// ModelOption locates switcher entries once it is open.
	ModelOption Chain
}

func (p Profile) validate() error {
	if p.Service == "" {
		return fmt.Errorf("profile missing service name")
	}
	if p.URL == "" {
		return fmt.Errorf("profile %s missing URL", p.Service)
	}
	if len(p.Input) == 0 || len(p.Submit) == 0 || len(p.Response) == 0 {
		return fmt.Errorf("profile %s missing interaction selectors", p.Service)
	}
	return nil
}

// chatgptProfile drives chat.openai.com.
func chatgptProfile() Profile {
	return Profile{
		Service: "chatgpt",
		URL:     "https://chat.openai.com",
		Host:    "chat.openai.com",
		Input: Chain{
			"[data-testid='prompt-textarea']",
			"textarea[placeholder*='Message']",
			"#prompt-textarea",
			".ProseMirror",
		},
		Submit: Chain{
			"[data-testid='send-button']",
			"button[aria-label*='Send']",
			"[data-testid='fruitjuice-send-button']",
		},
		Response: Chain{
			"[data-message-author-role='assistant']",
		},
		LoginWall: Chain{
			"button[data-testid='login-button']",
			".auth0-lock-widget",
			"[data-provider='auth0']",
		},
		Streaming: Chain{
			".result-streaming",
			"[data-testid='streaming-indicator']",
		},
		NewChat: Chain{
			"[data-testid='new-chat-button']",
			"button[aria-label*='New chat']",
			"a[href='/']",
		},
		ModelButton: Chain{
			"[data-testid='model-switcher-button']",
			"button[aria-label*='model']",
		},
		ModelOption: Chain{
			"[role='option']",
			".model-option",
		},
	}
}

// claudeProfile drives claude.ai.
func claudeProfile() Profile {
	return Profile{
		Service: "claude",
		URL:     "https://claude.ai",
		Host:    "claude.ai",
		Input: Chain{
			"[data-testid='chat-input']",
			"textarea[placeholder*='message']",
			"textarea[placeholder*='Message']",
			".ProseMirror",
			"div[contenteditable='true']",
		},
		Submit: Chain{
			"[data-testid='send-button']",
			"button[aria-label*='Send']",
			"button[type='submit']",
		},
		Response: Chain{
			"[data-testid='chat-message'][data-author='assistant']",
			".font-claude-message",
		},
		LoginWall: Chain{
			"[data-testid='login-button']",
			".auth-button",
		},
		Streaming: Chain{
			"[data-is-streaming='true']",
		},
		NewChat: Chain{
			"a[href='/new']",
		},
		ModelButton: Chain{
			"[data-testid='model-selector']",
		},
		ModelOption: Chain{
			"[role='option']",
		},
	}
}

// geminiProfile drives gemini.google.com.
func geminiProfile() Profile {
	return Profile{
		Service: "gemini",
		URL:     "https://gemini.google.com",
		Host:    "gemini.google.com",
		Input: Chain{
			"rich-textarea [contenteditable='true']",
			".ql-editor",
			"[role='textbox']",
		},
		Submit: Chain{
			"button[aria-label*='Send']",
			".send-button",
			"button[type='submit']",
		},
		Response: Chain{
			"message-content",
			".model-response-text",
		},
		LoginWall: Chain{
			"[data-testid='sign-in-button']",
			"a[href*='accounts.google.com']",
		},
		Streaming: Chain{
			".streaming",
			".loading-indicator",
		},
		NewChat: Chain{
			"button[aria-label*='New chat']",
		},
	}
}

// gensparkProfile drives genspark.ai.
func gensparkProfile() Profile {
	return Profile{
		Service: "genspark",
		URL:     "https://www.genspark.ai",
		Host:    "genspark.ai",
		Input: Chain{
			"[data-testid='search-input']",
			"[data-testid='query-input']",
			"input[placeholder*='Ask']",
			"input[placeholder*='Search']",
			".search-box input",
			"input[type='search']",
		},
		Submit: Chain{
			"[data-testid='search-button']",
			"[data-testid='submit-button']",
			"button[aria-label*='Search']",
			"button[type='submit']",
		},
		Response: Chain{
			".answer-content",
			".response-text",
			"[data-testid='answer']",
		},
		LoginWall: Chain{
			"[data-testid='login-button']",
			".login-button",
			".auth-button",
		},
		Streaming: Chain{
			".generating",
			".loading",
		},
	}
}

// aistudioProfile drives aistudio.google.com.
func aistudioProfile() Profile {
	return Profile{
		Service: "aistudio",
		URL:     "https://aistudio.google.com",
		Host:    "aistudio.google.com",
		Input: Chain{
			"textarea[placeholder*='Enter a prompt']",
			"[data-testid='prompt-input']",
			".prompt-textarea",
			".input-area textarea",
			"[role='textbox']",
		},
		Submit: Chain{
			"[data-testid='run-button']",
			"[data-testid='send-button']",
			"button[aria-label*='Run']",
			".run-button",
			"button[type='submit']",
		},
		Response: Chain{
			".response-container",
			".model-response",
			"[data-testid='response']",
		},
		LoginWall: Chain{
			"[data-testid='sign-in-button']",
			".sign-in-button",
		},
		Streaming: Chain{
			".generating-indicator",
			".loading",
		},
		ModelButton: Chain{
			"[data-testid='model-selector']",
			".model-selector",
			"select[name*='model']",
		},
		ModelOption: Chain{
			"[role='option']",
			".model-option",
		},
	}
}
