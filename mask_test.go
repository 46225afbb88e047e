package tupw

import "testing"

func TestMaskGeneratorDeterministicWithinInstance(t *testing.T) {
	g, err := newMaskGenerator(NewCryptoRandSource())
	if err != nil {
		t.Fatal(err)
	}
	defer g.destroy()

	if g.intMask(5) != g.intMask(5) {
		t.Fatal("intMask is not deterministic for a fixed position")
	}
	if g.byteMask(5) != byte(g.intMask(5)) {
		t.Fatal("byteMask must be the low byte of intMask")
	}
}

func TestMaskGeneratorIndependentAcrossInstances(t *testing.T) {
	g1, err := newMaskGenerator(NewCryptoRandSource())
	if err != nil {
		t.Fatal(err)
	}
	defer g1.destroy()
	g2, err := newMaskGenerator(NewCryptoRandSource())
	if err != nil {
		t.Fatal(err)
	}
	defer g2.destroy()

	same := 0
	for i := uint64(0); i < 32; i++ {
		if g1.intMask(i) == g2.intMask(i) {
			same++
		}
	}
	if same > 2 {
		t.Fatalf("two independently seeded generators agreed on %d/32 positions", same)
	}
}
