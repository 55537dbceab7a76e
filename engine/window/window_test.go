package window

import "testing"

func TestValidateClampsInitialSize(t *testing.T) {
	tests := []struct {
		name          string
		options       []WindowBuilderOption
		width, height int
		wantErr       bool
	}{
		{name: "defaults", width: 1280, height: 720},
		{name: "too small", options: []WindowBuilderOption{WithSize(10, 10)}, width: 320, height: 200},
		{name: "too large", options: []WindowBuilderOption{WithSize(8000, 8000), WithMaxSize(1920, 1080)}, width: 1920, height: 1080},
		{name: "inverted limits", options: []WindowBuilderOption{WithMinSize(800, 600), WithMaxSize(640, 480)}, wantErr: true},
		{name: "zero minimum", options: []WindowBuilderOption{WithMinSize(0, 200)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &engineWindow{minWidth: 320, minHeight: 200, maxWidth: 3840, maxHeight: 2160, width: 1280, height: 720}
			for _, opt := range tt.options {
				opt(w)
			}
			err := w.validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (w.width != tt.width || w.height != tt.height) {
				t.Errorf("size = %dx%d, want %dx%d", w.width, w.height, tt.width, tt.height)
			}
		})
	}
}

func TestDragState(t *testing.T) {
	var d dragState
	if _, _, ok := d.move(5, 5); ok {
		t.Fatal("move without a held button should not drag")
	}

	d.press(10, 20)
	dx, dy, ok := d.move(13, 16)
	if !ok || dx != 3 || dy != -4 {
		t.Fatalf("move = (%v, %v, %v), want (3, -4, true)", dx, dy, ok)
	}

	// a second button keeps the drag alive until both are released
	d.press(13, 16)
	d.release()
	if _, _, ok := d.move(14, 16); !ok {
		t.Fatal("drag ended while a button is still held")
	}
	d.release()
	if _, _, ok := d.move(20, 20); ok {
		t.Fatal("drag continued after every button was released")
	}
	d.release()
	if d.held != 0 {
		t.Errorf("held = %d after extra release", d.held)
	}
}

func TestSetSizeSkipsZeroFramebuffer(t *testing.T) {
	w := &engineWindow{}
	var calls int
	w.SetResizeCallback(func(width, height uint32) { calls++ })

	w.setSize(0, 0)
	w.setSize(640, 480)
	if calls != 1 {
		t.Fatalf("resize callback calls = %d, want 1", calls)
	}
	if width, height := w.Size(); width != 640 || height != 480 {
		t.Errorf("Size() = %dx%d", width, height)
	}
}
