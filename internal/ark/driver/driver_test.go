package driver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestIsNotReplicaSet(t *testing.T) {
	assert.True(t, IsNotReplicaSet(mongo.CommandError{Code: 76, Name: "NoReplicationEnabled"}))
	assert.True(t, IsNotReplicaSet(fmt.Errorf("wrapped: %w", mongo.CommandError{Name: "NoReplicationEnabled"})))
	assert.False(t, IsNotReplicaSet(mongo.CommandError{Code: 13, Name: "Unauthorized"}))
	assert.False(t, IsNotReplicaSet(errors.New("boom")))
	assert.False(t, IsNotReplicaSet(nil))
}
