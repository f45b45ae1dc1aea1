package paths

import "testing"

func TestFromURI(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"posix uri", "file:///home/dev/app/main.py", "/home/dev/app/main.py"},
		{"windows uri drops leading slash", "file:///C:/src/app/main.ts", "C:/src/app/main.ts"},
		{"percent decoding", "file:///home/dev/my%20project/a.py", "/home/dev/my project/a.py"},
		{"bare path unchanged", "/home/dev/app/main.py", "/home/dev/app/main.py"},
		{"windows bare path unchanged", `C:\src\app\main.ts`, `C:\src\app\main.ts`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromURI(tt.raw); got != tt.want {
				t.Errorf("FromURI(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCanonicalizeCaseSensitive(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"forward slashes kept", "/home/dev/app/main.py", "/home/dev/app/main.py"},
		{"backslashes converted", `src\app\main.ts`, "src/app/main.ts"},
		{"uri and path unify", "file:///home/dev/app/main.py", "/home/dev/app/main.py"},
		{"dot segments cleaned", "/home/dev/./app/../app/main.py", "/home/dev/app/main.py"},
		{"drive letter folded even when case sensitive", "C:/Src/main.ts", "c:/Src/main.ts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canonicalize(tt.raw, false); got != tt.want {
				t.Errorf("canonicalize(%q, false) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCanonicalizeCaseInsensitive(t *testing.T) {
	a := canonicalize(`C:\Src\App\Main.ts`, true)
	b := canonicalize("file:///c:/src/app/main.ts", true)
	if a != b {
		t.Errorf("same file did not unify: %q vs %q", a, b)
	}
}

func TestRel(t *testing.T) {
	got := Rel("/home/dev/app", "/home/dev/app/pkg/mod.py")
	if got != "pkg/mod.py" {
		t.Errorf("Rel() = %q, want pkg/mod.py", got)
	}

	// Outside the root: canonical absolute path comes back.
	got = Rel("/home/dev/app", "/etc/hosts")
	if got != "/etc/hosts" {
		t.Errorf("Rel() outside root = %q, want /etc/hosts", got)
	}
}
