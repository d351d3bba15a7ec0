package openai

import "testing"

func TestParseScene(t *testing.T) {
	raw := `{"narration": "You stand at the mouth of a cave.", "choices": ["Enter", "Walk away"]}`

	scene, err := parseScene(raw)
	if err != nil {
		t.Fatalf("parseScene: %v", err)
	}
	if scene.ID == "" {
		t.Error("scene should get an ID")
	}
	if scene.Narration != "You stand at the mouth of a cave." {
		t.Errorf("unexpected narration: %q", scene.Narration)
	}
	if len(scene.Choices) != 2 {
		t.Errorf("expected 2 choices, got %v", scene.Choices)
	}
}

func TestParseScene_CodeFence(t *testing.T) {
	raw := "```json\n{\"narration\": \"A door creaks open.\", \"choices\": [\"Step through\"]}\n```"

	scene, err := parseScene(raw)
	if err != nil {
		t.Fatalf("parseScene: %v", err)
	}
	if scene.Narration != "A door creaks open." {
		t.Errorf("unexpected narration: %q", scene.Narration)
	}
}

func TestParseScene_RepairsBrokenJSON(t *testing.T) {
	// Trailing comma and single quotes — typical model sloppiness.
	raw := `{'narration': 'The bridge sways in the wind.', 'choices': ['Cross', 'Turn back',]}`

	scene, err := parseScene(raw)
	if err != nil {
		t.Fatalf("parseScene should repair broken JSON: %v", err)
	}
	if scene.Narration != "The bridge sways in the wind." {
		t.Errorf("unexpected narration: %q", scene.Narration)
	}
	if len(scene.Choices) != 2 {
		t.Errorf("expected 2 choices, got %v", scene.Choices)
	}
}

func TestParseScene_EmptyNarration(t *testing.T) {
	if _, err := parseScene(`{"narration": "", "choices": []}`); err == nil {
		t.Error("empty narration should be rejected")
	}
}

func TestParseScene_Garbage(t *testing.T) {
	if _, err := parseScene("I cannot continue this story."); err == nil {
		t.Error("non-JSON response should be rejected")
	}
}

func TestParseScene_EndingHasNoChoices(t *testing.T) {
	scene, err := parseScene(`{"narration": "And so your tale ends.", "choices": []}`)
	if err != nil {
		t.Fatalf("parseScene: %v", err)
	}
	if len(scene.Choices) != 0 {
		t.Errorf("ending scene should have no choices, got %v", scene.Choices)
	}
}
