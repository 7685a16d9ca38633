package invoker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/engine/invoker"
)

func TestBuilder_CommandOrder(t *testing.T) {
	t.Parallel()

	cfg := domain.Config{
		IncludeDirs: []string{"/proj/include", "/proj/k"},
		Defines:     map[string]string{"BLOCK": "256", "USE_HALF": ""},
		OptLevel:    "3",
		ExtraFlags:  []string{"--use_fast_math"},
		CCBin:       "/usr/bin/g++-12",
	}
	b := invoker.NewBuilder(cfg, "/cuda/bin/nvcc", []string{"/proj/k", "/proj/k/common"})

	unit := domain.CompileUnit{
		Source: domain.SourceFile{Path: "/proj/k/saxpy.cu"},
		Archs:  domain.ArchSet{"75", "86"},
		Kind:   domain.ArtifactObject,
		Output: "/out/obj/saxpy.o",
	}
	invs := invoker.Invocations(unit, domain.EncodingCombined)
	assert.Len(t, invs, 1)

	cmd := b.Command(unit, invs[0], "/out/obj/.saxpy.o.1.tmp")
	assert.Equal(t, "/cuda/bin/nvcc", cmd.Program)
	assert.Equal(t, []string{
		"-c", "-o", "/out/obj/.saxpy.o.1.tmp",
		"--default-stream", "per-thread",
		"-I/proj/include", "-I/proj/k", "-I/proj/k/common",
		"-DBLOCK=256", "-DUSE_HALF",
		"-O3",
		"--generate-code=arch=compute_75,code=sm_75",
		"--generate-code=arch=compute_86,code=sm_86",
		"--use_fast_math",
		"-ccbin", "/usr/bin/g++-12", "-allow-unsupported-compiler",
		"/proj/k/saxpy.cu",
	}, cmd.Args)
}

func TestBuilder_MinimalPTX(t *testing.T) {
	t.Parallel()

	b := invoker.NewBuilder(domain.Config{}, "nvcc", nil)
	unit := domain.CompileUnit{
		Source: domain.SourceFile{Path: "/k/a.cu"},
		Archs:  domain.ArchSet{"75"},
		Kind:   domain.ArtifactPTX,
		Output: "/out/a.ptx",
	}

	cmd := b.Command(unit, invoker.Invocations(unit, domain.EncodingPerArch)[0], "/out/.a.ptx.tmp")
	assert.Equal(t, []string{
		"--ptx", "-o", "/out/.a.ptx.tmp",
		"--default-stream", "per-thread",
		"--gpu-architecture=sm_75",
		"/k/a.cu",
	}, cmd.Args)
	assert.Equal(t, []string{"nvcc", "--default-stream", "per-thread"}, b.Flags())
	assert.Equal(t, "nvcc", b.Compiler())
}

func TestInvocations_Variants(t *testing.T) {
	t.Parallel()

	unit := domain.CompileUnit{
		Archs: domain.ArchSet{"75", "90a"},
		Kind:  domain.ArtifactPTX,
		Variants: []domain.Variant{
			{Arch: "75", Path: "/out/k.sm_75.ptx"},
			{Arch: "90a", Path: "/out/k.sm_90a.ptx"},
		},
	}

	assert.Equal(t, []invoker.Invocation{
		{ArchFlags: []string{"--gpu-architecture=sm_75"}, Output: "/out/k.sm_75.ptx"},
		{ArchFlags: []string{"--gpu-architecture=sm_90a"}, Output: "/out/k.sm_90a.ptx"},
	}, invoker.Invocations(unit, domain.EncodingPerArch))
}

func TestArchFlags(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]string{"--generate-code=arch=compute_90a,code=sm_90a"},
		invoker.ArchFlags(domain.EncodingCombined, domain.ArchSet{"90a"}))
	assert.Equal(t,
		[]string{"--gpu-architecture=sm_86"},
		invoker.ArchFlags(domain.EncodingPerArch, domain.ArchSet{"86"}))
}
