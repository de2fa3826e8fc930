package otp

import (
	"sync"
	"testing"
)

func TestGenerateLengthAndCharset(t *testing.T) {
	for _, length := range []int{4, 6} {
		code, err := Generate(length)
		if err != nil {
			t.Fatalf("Generate(%d): %v", length, err)
		}
		if len(code) != length {
			t.Fatalf("Generate(%d) returned %q (len %d)", length, code, len(code))
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("Generate(%d) returned non-digit %q", length, code)
			}
		}
	}
}

func TestGenerateInvalidLength(t *testing.T) {
	if _, err := Generate(0); err == nil {
		t.Error("Generate(0): expected error")
	}
	if _, err := Generate(-1); err == nil {
		t.Error("Generate(-1): expected error")
	}
}

// Chi-square sanity check over 10k samples: for each of the 4 positions,
// digit counts should not deviate from uniform beyond statistical noise.
// Critical value for 9 degrees of freedom at p=0.001 is 27.88; a fair
// generator fails this roughly once per thousand runs per position.
func TestGenerateDigitDistribution(t *testing.T) {
	const samples = 10000
	const length = 4

	var counts [length][10]int
	seen := make(map[string]int, samples)

	for i := 0; i < samples; i++ {
		code, err := Generate(length)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		seen[code]++
		for pos, c := range code {
			counts[pos][c-'0']++
		}
	}

	expected := float64(samples) / 10
	for pos := 0; pos < length; pos++ {
		var chi2 float64
		for d := 0; d < 10; d++ {
			diff := float64(counts[pos][d]) - expected
			chi2 += diff * diff / expected
		}
		if chi2 > 27.88 {
			t.Errorf("position %d: chi-square %.2f exceeds 27.88, digit counts %v", pos, chi2, counts[pos])
		}
	}

	// With 10k draws from 10k possible codes, expected max multiplicity is
	// small; anything collected 10+ times indicates a broken source.
	for code, n := range seen {
		if n >= 10 {
			t.Errorf("code %q generated %d times in %d samples", code, n, samples)
		}
	}
}

func TestGenerateConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := Generate(4); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Generate: %v", err)
	}
}
