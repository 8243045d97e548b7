package scene_test

import (
	"testing"
	"time"

	"assetflow/internal/scene"
)

func TestHeadlessEngineTransitions(t *testing.T) {
	engine := scene.NewHeadlessEngine(func(name string) bool { return name == "menu" || name == "forest" })
	m := scene.New(engine, nil, scene.WithTick(time.Millisecond))

	done, ch := completion()
	if !m.RequestTransition(scene.Request{Target: "menu", OnComplete: done}) {
		t.Fatal("expected request to be accepted")
	}
	if err := waitDone(t, ch); err != nil {
		t.Fatalf("transition to menu: %v", err)
	}
	if !engine.SceneLoaded("menu") {
		t.Fatal("menu should be loaded")
	}

	if !m.RequestTransition(scene.Request{Target: "forest", OnComplete: done}) {
		t.Fatal("expected request to be accepted")
	}
	if err := waitDone(t, ch); err != nil {
		t.Fatalf("transition to forest: %v", err)
	}
	if engine.SceneLoaded("menu") || !engine.SceneLoaded("forest") {
		t.Fatalf("unexpected loaded scenes %v", engine.Loaded())
	}
	if st := m.Status(); st.State != scene.Idle || st.Current != "forest" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestHeadlessEngineNilValidator(t *testing.T) {
	engine := scene.NewHeadlessEngine(nil)
	if !engine.SceneValid("anything") || engine.SceneValid("") {
		t.Fatal("nil validator should accept non-empty names only")
	}
}
