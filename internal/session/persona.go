package session

import "fmt"

// Persona selects which assistant flavor a session runs as.
type Persona string

const (
	// PersonaVivaBot is the conversational website assistant. It speaks
	// freely and supports local barge-in so the user can talk over it.
	PersonaVivaBot Persona = "vivabot"

	// PersonaInterpreter is the LinguaLive live translator. It runs in
	// push-to-talk mode and starts muted.
	PersonaInterpreter Persona = "interpreter"
)

// Language is a translation target offered by the interpreter persona.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Languages lists the interpreter's supported targets.
var Languages = []Language{
	{Code: "hi", Name: "Hindi"},
	{Code: "bn", Name: "Bengali"},
	{Code: "ta", Name: "Tamil"},
	{Code: "te", Name: "Telugu"},
	{Code: "mr", Name: "Marathi"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "ja", Name: "Japanese"},
	{Code: "ar", Name: "Arabic"},
}

// Voices lists the prebuilt synthesized voices a session may use.
var Voices = []string{"Kore", "Zephyr", "Aoede", "Puck", "Charon"}

const defaultVoice = "Kore"

const vivabotInstruction = `You are Viva, the friendly voice assistant on the VivaBot website. ` +
	`Keep answers short, warm, and conversational. You may mix Hindi and English ` +
	`naturally the way an Indian speaker would. Help visitors understand VivaBot's ` +
	`products and guide them around the site. Never read out URLs or code.`

// PersonaConfig resolves a persona into the immutable settings a session is
// opened with.
type PersonaConfig struct {
	Persona      Persona
	Voice        string
	Instruction  string
	LocalBargeIn bool
	StartMuted   bool
}

// ResolvePersona maps a persona plus optional language and voice overrides
// to a full configuration. The language is only meaningful for the
// interpreter persona.
func ResolvePersona(p Persona, languageCode, voice string) (PersonaConfig, error) {
	if voice == "" {
		voice = defaultVoice
	} else if !validVoice(voice) {
		return PersonaConfig{}, fmt.Errorf("unknown voice %q", voice)
	}

	switch p {
	case PersonaVivaBot:
		return PersonaConfig{
			Persona:      PersonaVivaBot,
			Voice:        voice,
			Instruction:  vivabotInstruction,
			LocalBargeIn: true,
		}, nil
	case PersonaInterpreter:
		lang, ok := languageByCode(languageCode)
		if !ok {
			return PersonaConfig{}, fmt.Errorf("unknown language %q", languageCode)
		}
		return PersonaConfig{
			Persona: PersonaInterpreter,
			Voice:   voice,
			Instruction: fmt.Sprintf(
				`You are a simultaneous interpreter. Translate everything the user says into %s. `+
					`Speak only the translation, with no commentary, no explanations, and no questions. `+
					`Preserve the speaker's tone and intent.`, lang.Name),
			StartMuted: true,
		}, nil
	default:
		return PersonaConfig{}, fmt.Errorf("unknown persona %q", p)
	}
}

func languageByCode(code string) (Language, bool) {
	for _, l := range Languages {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

func validVoice(voice string) bool {
	for _, v := range Voices {
		if v == voice {
			return true
		}
	}
	return false
}
