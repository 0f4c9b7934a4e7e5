package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     bool
	}{
		{"mkv file", "movie.mkv", true},
		{"mp4 file", "movie.mp4", true},
		{"m2ts file", "movie.m2ts", true},
		{"rmvb file", "movie.rmvb", true},
		{"txt file", "readme.txt", false},
		{"nfo file", "movie.nfo", false},
		{"srt file", "movie.srt", false},
		{"uppercase MKV", "MOVIE.MKV", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsVideoFile(tt.filename); got != tt.want {
				t.Errorf("IsVideoFile(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		file FileInfo
		want Kind
	}{
		{FileInfo{Name: "Movie.2020.mkv", Size: 2 << 30}, KindMedia},
		{FileInfo{Name: "Movie.2020.sample.mkv", Size: 10 << 20}, KindSample},
		{FileInfo{Name: "Movie.2020.sample.mkv", Size: 2 << 30}, KindMedia},
		{FileInfo{Name: "Movie.2020-trailer.mkv", Size: 50 << 20}, KindExtra},
		{FileInfo{Name: "Movie.2020.en.srt"}, KindSubtitle},
		{FileInfo{Name: "Movie.2020.nfo"}, KindSidecar},
		{FileInfo{Name: "Movie.2020-poster.jpg"}, KindSidecar},
		{FileInfo{Name: "release.sfv"}, KindOther},
	}
	for _, tt := range tests {
		if got := Classify(tt.file); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.file.Name, got, tt.want)
		}
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScanMedia(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b", "Show.S01E02.mkv"))
	touch(t, filepath.Join(root, "a", "Movie.2020.mkv"))
	touch(t, filepath.Join(root, "a", "Movie.2020.srt"))
	touch(t, filepath.Join(root, "a", "Movie.2020.sample.mkv"))
	touch(t, filepath.Join(root, ".trash", "Deleted.mkv"))

	files, err := ScanMedia(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 media files, got %d: %+v", len(files), files)
	}
	if files[0].Name != "Movie.2020.mkv" || files[1].Name != "Show.S01E02.mkv" {
		t.Errorf("unexpected order: %s, %s", files[0].Name, files[1].Name)
	}

	single, err := ScanMedia(context.Background(), filepath.Join(root, "a", "Movie.2020.mkv"))
	if err != nil || len(single) != 1 {
		t.Errorf("single file scan = %v, %v", single, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ScanMedia(ctx, root); err == nil {
		t.Error("expected cancelled scan to fail")
	}

	if _, err := ScanMedia(context.Background(), filepath.Join(root, "missing")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestFindSidecars(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "Movie.2020.mkv")
	touch(t, media)
	touch(t, filepath.Join(dir, "Movie.2020.en.srt"))
	touch(t, filepath.Join(dir, "Movie.2020.nfo"))
	touch(t, filepath.Join(dir, "Movie.2020-poster.jpg"))
	touch(t, filepath.Join(dir, "Movie.2020 Part 2.srt"))
	touch(t, filepath.Join(dir, "Movie.2020.txt"))
	touch(t, filepath.Join(dir, "Other.srt"))

	got, err := FindSidecars(media)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Movie.2020-poster.jpg", "Movie.2020.en.srt", "Movie.2020.nfo"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if filepath.Base(got[i]) != want[i] {
			t.Errorf("sidecar %d = %s, want %s", i, filepath.Base(got[i]), want[i])
		}
	}
}

func TestRenameSidecar(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Movie.2020.en.srt", "Movie (2020).en.srt"},
		{"Movie.2020-poster.jpg", "Movie (2020)-poster.jpg"},
		{"Unrelated.srt", "Unrelated.srt"},
	}
	for _, tt := range tests {
		if got := RenameSidecar(tt.in, "Movie.2020", "Movie (2020)"); got != tt.want {
			t.Errorf("RenameSidecar(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
