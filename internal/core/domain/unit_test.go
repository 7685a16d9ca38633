package domain_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kbuild/internal/core/domain"
)

func TestCommand_String(t *testing.T) {
	cmd := domain.Command{
		Program: "nvcc",
		Args:    []string{"--ptx", "-DNAME=a b", "-DEMPTY=", "it's.cu", ""},
	}
	assert.Equal(t, `nvcc --ptx '-DNAME=a b' -DEMPTY= 'it'\''s.cu' ''`, cmd.String())
	assert.Equal(t, []string{"nvcc", "--ptx", "-DNAME=a b", "-DEMPTY=", "it's.cu", ""}, cmd.Argv())
}

func TestArtifact_Files(t *testing.T) {
	single := domain.Artifact{Path: "add.ptx"}
	assert.Equal(t, []string{"add.ptx"}, single.Files())

	multi := domain.Artifact{
		Path: "add.sm_75.ptx",
		Variants: []domain.Variant{
			{Arch: "75", Path: "add.sm_75.ptx"},
			{Arch: "86", Path: "add.sm_86.ptx"},
		},
	}
	assert.Equal(t, []string{"add.sm_75.ptx", "add.sm_86.ptx"}, multi.Files())
}

func TestProcessResult_Success(t *testing.T) {
	assert.True(t, domain.ProcessResult{}.Success())
	assert.False(t, domain.ProcessResult{ExitCode: 2}.Success())
}

func TestLayout(t *testing.T) {
	out := filepath.Join("build", "k")

	assert.Equal(t, filepath.Join(out, "add.ptx"), domain.ArtifactPath(out, "add", domain.ArtifactPTX))
	assert.Equal(t, filepath.Join(out, "obj", "add.o"), domain.ArtifactPath(out, "add", domain.ArtifactObject))
	assert.Equal(t, filepath.Join(out, "add.sm_90a.ptx"), domain.VariantPath(out, "add", "90a"))
	assert.Equal(t, filepath.Join(out, ".kbuild-record.json"), domain.RecordPath(out))
}
