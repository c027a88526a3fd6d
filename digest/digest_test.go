package digest

import "testing"

func TestSHA3_KnownVector(t *testing.T) {
	// SHA3-256("") from FIPS 202
	want := "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a"
	if got := SHA3(""); got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got := SHA3("person"); len(got) != 64 {
		t.Fatalf("len = %d, want 64", len(got))
	}
}

func TestHighwayHash_Deterministic(t *testing.T) {
	a := HighwayHash("object/1")
	if a != HighwayHash("object/1") {
		t.Fatalf("digest not deterministic")
	}
	if a == HighwayHash("object/2") {
		t.Fatalf("distinct keys share digest %v", a)
	}
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}
}

func TestByName(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{name: "", key: "", want: SHA3("")},
		{name: "sha3", key: "k", want: SHA3("k")},
		{name: "highway", key: "k", want: HighwayHash("k")},
		{name: "none", key: "a/b", want: "a/b"},
		{name: "md5", wantErr: true},
	}
	for _, tt := range tests {
		fn, err := ByName(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tt.name, err)
		}
		if got := fn(tt.key); got != tt.want {
			t.Errorf("%q: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
