package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCameraList(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"cam0", "cam1"}, parseCameraList("cam0,cam1"))
	assert.Equal(t, []string{"cam0"}, parseCameraList(" cam0 , "))
	assert.Nil(t, parseCameraList(""))
	assert.Nil(t, parseCameraList(" , ,"))
}
