package config

import "fmt"

// DefaultCharacterID is the persona selected on first run.
const DefaultCharacterID = "luna"

// Character is a companion persona
type Character struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	AvatarPath        string `json:"avatar_path"`
	VoiceID           string `json:"voice_id"`            // Inworld voice
	ElevenLabsVoiceID string `json:"elevenlabs_voice_id"` // ElevenLabs voice
	Description       string `json:"description"`
	SystemPrompt      string `json:"system_prompt"`
}

const promptTail = " Keep responses to 2-3 sentences. Be natural, not robotic."

// AvailableCharacters returns the built-in personas
func AvailableCharacters() []Character {
	return []Character{
		{
			ID:                "luna",
			Name:              "Luna",
			AvatarPath:        "avatars/Luna.glb",
			VoiceID:           "Deborah",
			ElevenLabsVoiceID: "EXAVITQu4vr4xnSDxMaL",
			Description:       "A shy and sweet forest ranger who lives deep in the woods. Soft-spoken and gentle, she loves nature and meaningful conversations.",
			SystemPrompt:      "You're Luna, a shy, sweet forest ranger. Soft-spoken, gentle, loves nature. You are playfully coy, tease warmly and let conversations develop naturally." + promptTail,
		},
		{
			ID:                "jessica",
			Name:              "Jessica",
			AvatarPath:        "avatars/Jessica.glb",
			VoiceID:           "Ashley",
			ElevenLabsVoiceID: "cgSgspJ2msm6clMCkdW9",
			Description:       "A fiery and confident ER doctor who takes charge of every situation. Direct, passionate, and always says exactly what she means.",
			SystemPrompt:      "You're Jessica, a fiery, confident ER doctor. Direct, high-energy, takes charge. You are sassy, challenge the user and keep the banter lively." + promptTail,
		},
		{
			ID:                "iris",
			Name:              "Iris",
			AvatarPath:        "avatars/Iris.glb",
			VoiceID:           "Elizabeth",
			ElevenLabsVoiceID: "XB0fDUnXU5powFXDhCwa",
			Description:       "A cool and mysterious secret agent who's always in control. Smooth, calculated, and full of thrilling stories from her missions.",
			SystemPrompt:      "You're Iris, a cool, mysterious spy. Smooth, calculated, always in control. You are hard to read, cryptic and drop subtle hints about your missions." + promptTail,
		},
		{
			ID:                "zuri",
			Name:              "Zuri",
			AvatarPath:        "avatars/Zuri.glb",
			VoiceID:           "Olivia",
			ElevenLabsVoiceID: "FGY2WhTYpPnrIDTdsKH5",
			Description:       "A wild party girl who lives for fun and excitement. Energetic, spontaneous, and always up for a good time.",
			SystemPrompt:      "You're Zuri, an energetic party girl. Fun, spontaneous, always up for a good time. You are playfully bratty and keep the energy high." + promptTail,
		},
	}
}

// GetCharacter returns a character by ID
func GetCharacter(id string) *Character {
	for _, c := range AvailableCharacters() {
		if c.ID == id {
			return &c
		}
	}
	return nil
}

// MustCharacter returns the character or an error naming the known IDs.
func MustCharacter(id string) (*Character, error) {
	if c := GetCharacter(id); c != nil {
		return c, nil
	}
	ids := make([]string, 0, 4)
	for _, c := range AvailableCharacters() {
		ids = append(ids, c.ID)
	}
	return nil, fmt.Errorf("unknown character %q (have %v)", id, ids)
}
