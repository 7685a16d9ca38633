package tracker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports/mocks"
	"go.trai.ch/kbuild/internal/engine/tracker"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

const outDir = "/proj/build"

func kernel(path, hash string) domain.SourceFile {
	return domain.SourceFile{Path: path, Hash: hash, Kind: domain.KindKernel}
}

func baseInput(record *domain.BuildRecord, kernels ...domain.SourceFile) tracker.Input {
	return tracker.Input{
		Sources:   domain.SourceSet{Kernels: kernels},
		Archs:     domain.ArchSet{"75"},
		Kind:      domain.ArtifactPTX,
		Encoding:  domain.EncodingCombined,
		OutputDir: outDir,
		Flags:     []string{"nvcc", "-O3"},
		Headers:   domain.HeadersDirect,
		Record:    record,
	}
}

func recorded(hash string, archs domain.ArchSet, fp, artifact string) domain.RecordEntry {
	return domain.RecordEntry{Hash: hash, Archs: archs, Fingerprint: fp, Kind: domain.ArtifactPTX, Artifact: artifact}
}

func setup(t *testing.T) (*tracker.Tracker, *mocks.MockHasher, *mocks.MockVerifier) {
	t.Helper()
	ctrl := gomock.NewController(t)
	hasher := mocks.NewMockHasher(ctrl)
	verifier := mocks.NewMockVerifier(ctrl)
	return tracker.New(hasher, verifier), hasher, verifier
}

func TestPlan_EmptyRecordCompilesEverything(t *testing.T) {
	t.Parallel()

	tr, hasher, _ := setup(t)
	hasher.EXPECT().ComputeStringsHash([]string{"ptx", "combined", "nvcc", "-O3"}).Return("fp")

	plan, err := tr.Plan(baseInput(domain.NewBuildRecord(),
		kernel("/proj/k/a.cu", "h1"),
		kernel("/proj/k/b.cu", "h2"),
	))
	require.NoError(t, err)
	assert.Empty(t, plan.Reuse)
	require.Len(t, plan.Compile, 2)
	assert.Equal(t, "fp", plan.Fingerprint)

	unit := plan.Compile[0]
	assert.Equal(t, "/proj/k/a.cu", unit.Source.Path)
	assert.Equal(t, "/proj/build/a.ptx", unit.Output)
	assert.Equal(t, domain.ArchSet{"75"}, unit.Archs)
	assert.Equal(t, "fp", unit.Fingerprint)
	assert.Empty(t, unit.Variants)
}

func TestPlan_ReusesUnchanged(t *testing.T) {
	t.Parallel()

	tr, hasher, verifier := setup(t)
	hasher.EXPECT().ComputeStringsHash(gomock.Any()).Return("fp")

	record := domain.NewBuildRecord()
	record.Put("/proj/k/a.cu", recorded("h1", domain.ArchSet{"75"}, "fp", "/proj/build/a.ptx"))
	record.Put("/proj/k/b.cu", recorded("old", domain.ArchSet{"75"}, "fp", "/proj/build/b.ptx"))
	verifier.EXPECT().Exists([]string{"/proj/build/a.ptx"}).Return(true, nil)

	plan, err := tr.Plan(baseInput(record,
		kernel("/proj/k/a.cu", "h1"),
		kernel("/proj/k/b.cu", "h2"),
	))
	require.NoError(t, err)

	require.Len(t, plan.Reuse, 1)
	assert.Equal(t, domain.Artifact{
		Source: "/proj/k/a.cu",
		Kind:   domain.ArtifactPTX,
		Path:   "/proj/build/a.ptx",
		Reused: true,
	}, plan.Reuse[0])

	require.Len(t, plan.Compile, 1)
	assert.Equal(t, "/proj/k/b.cu", plan.Compile[0].Source.Path)
}

func TestPlan_StaleReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry domain.RecordEntry
	}{
		{"hash changed", recorded("other", domain.ArchSet{"75"}, "fp", "/proj/build/a.ptx")},
		{"archs changed", recorded("h1", domain.ArchSet{"75", "86"}, "fp", "/proj/build/a.ptx")},
		{"flags changed", recorded("h1", domain.ArchSet{"75"}, "fp-old", "/proj/build/a.ptx")},
		{"output moved", recorded("h1", domain.ArchSet{"75"}, "fp", "/elsewhere/a.ptx")},
		{"kind changed", domain.RecordEntry{
			Hash: "h1", Archs: domain.ArchSet{"75"}, Fingerprint: "fp",
			Kind: domain.ArtifactObject, Artifact: "/proj/build/a.ptx",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr, hasher, _ := setup(t)
			hasher.EXPECT().ComputeStringsHash(gomock.Any()).Return("fp")

			record := domain.NewBuildRecord()
			record.Put("/proj/k/a.cu", tt.entry)

			plan, err := tr.Plan(baseInput(record, kernel("/proj/k/a.cu", "h1")))
			require.NoError(t, err)
			assert.Empty(t, plan.Reuse)
			assert.Len(t, plan.Compile, 1)
		})
	}
}

func TestPlan_MissingArtifactRecompiles(t *testing.T) {
	t.Parallel()

	tr, hasher, verifier := setup(t)
	hasher.EXPECT().ComputeStringsHash(gomock.Any()).Return("fp")
	verifier.EXPECT().Exists([]string{"/proj/build/a.ptx"}).Return(false, nil)

	record := domain.NewBuildRecord()
	record.Put("/proj/k/a.cu", recorded("h1", domain.ArchSet{"75"}, "fp", "/proj/build/a.ptx"))

	plan, err := tr.Plan(baseInput(record, kernel("/proj/k/a.cu", "h1")))
	require.NoError(t, err)
	assert.Empty(t, plan.Reuse)
	assert.Len(t, plan.Compile, 1)
}

func TestPlan_VerifierError(t *testing.T) {
	t.Parallel()

	tr, hasher, verifier := setup(t)
	hasher.EXPECT().ComputeStringsHash(gomock.Any()).Return("fp")
	verifier.EXPECT().Exists(gomock.Any()).Return(false, zerr.New("permission denied"))

	record := domain.NewBuildRecord()
	record.Put("/proj/k/a.cu", recorded("h1", domain.ArchSet{"75"}, "fp", "/proj/build/a.ptx"))

	_, err := tr.Plan(baseInput(record, kernel("/proj/k/a.cu", "h1")))
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrIO)
}

func TestPlan_ForceIgnoresRecord(t *testing.T) {
	t.Parallel()

	tr, hasher, _ := setup(t)
	hasher.EXPECT().ComputeStringsHash(gomock.Any()).Return("fp")

	record := domain.NewBuildRecord()
	record.Put("/proj/k/a.cu", recorded("h1", domain.ArchSet{"75"}, "fp", "/proj/build/a.ptx"))

	in := baseInput(record, kernel("/proj/k/a.cu", "h1"))
	in.Force = true
	plan, err := tr.Plan(in)
	require.NoError(t, err)
	assert.Empty(t, plan.Reuse)
	assert.Len(t, plan.Compile, 1)
}

func TestPlan_PerArchVariants(t *testing.T) {
	t.Parallel()

	tr, hasher, _ := setup(t)
	hasher.EXPECT().ComputeStringsHash(gomock.Any()).Return("fp")

	in := baseInput(nil, kernel("/proj/k/saxpy.cu", "h1"))
	in.Archs = domain.ArchSet{"75", "86"}
	in.Encoding = domain.EncodingPerArch

	plan, err := tr.Plan(in)
	require.NoError(t, err)
	require.Len(t, plan.Compile, 1)

	unit := plan.Compile[0]
	assert.Equal(t, []domain.Variant{
		{Arch: "75", Path: "/proj/build/saxpy.sm_75.ptx"},
		{Arch: "86", Path: "/proj/build/saxpy.sm_86.ptx"},
	}, unit.Variants)
	assert.Equal(t, "/proj/build/saxpy.sm_75.ptx", unit.Output)
}

func TestPlan_LibraryObjects(t *testing.T) {
	t.Parallel()

	tr, hasher, _ := setup(t)
	hasher.EXPECT().ComputeStringsHash(gomock.Any()).Return("fp")

	in := baseInput(nil, kernel("/proj/k/saxpy.cu", "h1"))
	in.Kind = domain.ArtifactObject
	in.Archs = domain.ArchSet{"75", "86"}

	plan, err := tr.Plan(in)
	require.NoError(t, err)
	require.Len(t, plan.Compile, 1)
	assert.Equal(t, "/proj/build/obj/saxpy.o", plan.Compile[0].Output)
	assert.Empty(t, plan.Compile[0].Variants)
}

func TestPlan_AllHeadersFoldsHeaderHashes(t *testing.T) {
	t.Parallel()

	tr, hasher, _ := setup(t)
	hasher.EXPECT().ComputeStringsHash([]string{
		"ptx", "combined", "nvcc", "-O3",
		"all-headers", "/proj/k/common.cuh", "hh",
	}).Return("fp-headers")

	in := baseInput(nil, kernel("/proj/k/a.cu", "h1"))
	in.Headers = domain.HeadersAll
	in.Sources.Headers = []domain.SourceFile{{Path: "/proj/k/common.cuh", Hash: "hh", Kind: domain.KindHeader}}

	plan, err := tr.Plan(in)
	require.NoError(t, err)
	assert.Equal(t, "fp-headers", plan.Fingerprint)
}

func TestPlan_DuplicateStem(t *testing.T) {
	t.Parallel()

	tr, _, _ := setup(t)

	_, err := tr.Plan(baseInput(nil,
		kernel("/proj/a/reduce.cu", "h1"),
		kernel("/proj/b/reduce.cu", "h2"),
	))
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrConfig)
	assert.ErrorContains(t, err, domain.ErrDuplicateStem.Error())
}

func TestPlan_DuplicateModuleName(t *testing.T) {
	t.Parallel()

	tr, _, _ := setup(t)

	_, err := tr.Plan(baseInput(nil,
		kernel("/proj/k/a-b.cu", "h1"),
		kernel("/proj/k/a_b.cu", "h2"),
	))
	require.ErrorIs(t, err, domain.ErrConfig)
	assert.ErrorContains(t, err, domain.ErrDuplicateStem.Error())
	assert.ErrorContains(t, err, "A_B")
}

func TestPlan_StemCollidesWithVariant(t *testing.T) {
	t.Parallel()

	tr, _, _ := setup(t)

	in := baseInput(nil,
		kernel("/proj/k/scan.cu", "h1"),
		kernel("/proj/k/scan.sm_86.cu", "h2"),
	)
	in.Archs = domain.ArchSet{"75", "86"}
	in.Encoding = domain.EncodingPerArch

	_, err := tr.Plan(in)
	require.ErrorIs(t, err, domain.ErrConfig)
	assert.ErrorContains(t, err, domain.ErrDuplicateStem.Error())
	assert.ErrorContains(t, err, "/proj/build/scan.sm_86.ptx")
}

func TestPlan_DottedStemWithoutVariants(t *testing.T) {
	t.Parallel()

	tr, hasher, _ := setup(t)
	hasher.EXPECT().ComputeStringsHash(gomock.Any()).Return("fp")

	plan, err := tr.Plan(baseInput(nil,
		kernel("/proj/k/scan.cu", "h1"),
		kernel("/proj/k/scan.sm_86.cu", "h2"),
	))
	require.NoError(t, err)
	assert.Len(t, plan.Compile, 2)
}
