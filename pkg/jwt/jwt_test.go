package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"carelink-backend/internal/domain"
)

func TestGenerateAndResolve(t *testing.T) {
	manager := NewManager("test-secret-key-at-least-32-chars!!", 15*time.Minute)

	identity := domain.Identity{
		UserID: uuid.New(),
		Name:   "Dr. Adams",
		Role:   domain.RoleDoctor,
	}

	token, err := manager.Generate(identity)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	resolved, err := manager.Resolve(token)
	assert.NoError(t, err)
	assert.Equal(t, identity.UserID, resolved.UserID)
	assert.Equal(t, identity.Name, resolved.Name)
	assert.Equal(t, domain.RoleDoctor, resolved.Role)
}

func TestResolveExpiredToken(t *testing.T) {
	manager := NewManager("test-secret-key-at-least-32-chars!!", -1*time.Minute)

	token, err := manager.Generate(domain.Identity{
		UserID: uuid.New(),
		Role:   domain.RolePatient,
	})
	assert.NoError(t, err)

	_, err = manager.Resolve(token)
	assert.Error(t, err)
}

func TestResolveWrongSecret(t *testing.T) {
	manager := NewManager("test-secret-key-at-least-32-chars!!", 15*time.Minute)
	other := NewManager("another-secret-key-entirely-here!!!", 15*time.Minute)

	token, err := manager.Generate(domain.Identity{
		UserID: uuid.New(),
		Role:   domain.RolePatient,
	})
	assert.NoError(t, err)

	_, err = other.Resolve(token)
	assert.Error(t, err)
}

func TestResolveUnknownRole(t *testing.T) {
	manager := NewManager("test-secret-key-at-least-32-chars!!", 15*time.Minute)

	token, err := manager.Generate(domain.Identity{
		UserID: uuid.New(),
		Role:   domain.Role("admin"),
	})
	assert.NoError(t, err)

	_, err = manager.Resolve(token)
	assert.Error(t, err)
}
