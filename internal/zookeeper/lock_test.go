package zookeeper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortBySequence_IgnoresProtectedPrefix(t *testing.T) {
	children := []string{
		"_c_ffff-lock-0000000003",
		"_c_0000-lock-0000000010",
		"_c_aaaa-lock-0000000001",
	}
	sortBySequence(children)

	assert.Equal(t, []string{
		"_c_aaaa-lock-0000000001",
		"_c_ffff-lock-0000000003",
		"_c_0000-lock-0000000010",
	}, children)
}

func TestSequenceOf(t *testing.T) {
	assert.Equal(t, "0000000007", sequenceOf("_c_guid-lock-0000000007"))
	assert.Equal(t, "plain", sequenceOf("plain"))
}
