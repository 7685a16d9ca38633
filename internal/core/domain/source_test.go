package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kbuild/internal/core/domain"
)

func TestModuleName(t *testing.T) {
	tests := map[string]string{
		"add":        "ADD",
		"mat-mul":    "MAT_MUL",
		"soft.max":   "SOFT_MAX",
		"conv2d":     "CONV2D",
		"2d_blur":    "_D_BLUR",
		"layer_norm": "LAYER_NORM",
	}
	for stem, want := range tests {
		assert.Equal(t, want, domain.ModuleName(stem), stem)
	}
}

func TestSourceFile_Stem(t *testing.T) {
	assert.Equal(t, "mat-mul", domain.SourceFile{Path: "/k/mat-mul.cu"}.Stem())
	assert.Equal(t, "a.b", domain.SourceFile{Path: "/k/a.b.cu"}.Stem())
}

func TestSourceSet_HeaderDirs(t *testing.T) {
	set := domain.SourceSet{Headers: []domain.SourceFile{
		{Path: "/k/z/b.cuh"},
		{Path: "/k/a/x.cuh"},
		{Path: "/k/z/a.cuh"},
	}}
	assert.Equal(t, []string{"/k/a", "/k/z"}, set.HeaderDirs())
	assert.Equal(t, "header", domain.KindHeader.String())
	assert.Equal(t, "kernel", domain.KindKernel.String())
}
