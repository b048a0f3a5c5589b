package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VersatileShare/internal/auth"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		event   string
	}{
		{
			name:  "valid join",
			raw:   `{"event":"join-resource","data":{"resourceId":"r1"}}`,
			event: CmdJoinResource,
		},
		{
			name:  "valid update with patch",
			raw:   `{"event":"resource-update","data":{"resourceId":"r1","patch":{"views":3}}}`,
			event: CmdResourceUpdate,
		},
		{
			name:    "unknown event",
			raw:     `{"event":"drop-tables","data":{"resourceId":"r1"}}`,
			wantErr: true,
		},
		{
			name:    "server event from client",
			raw:     `{"event":"new-resource","data":{"resourceId":"r1"}}`,
			wantErr: true,
		},
		{
			name:    "missing resource id",
			raw:     `{"event":"join-resource","data":{}}`,
			wantErr: true,
		},
		{
			name:    "no data",
			raw:     `{"event":"join-resource"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			raw:     `{"event":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, cmd, err := ParseCommand([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.event, event)
			assert.Equal(t, "r1", cmd.ResourceID)
		})
	}
}

func TestGroupsForClaims(t *testing.T) {
	t.Run("student gets semester tag", func(t *testing.T) {
		claims := &auth.JWTClaims{UserID: "u1", Role: auth.RoleStudent, Department: "CS", Semester: 3}
		groups := GroupsForClaims(claims)
		assert.ElementsMatch(t, []string{"user:u1", "role:student", "department:CS", "semester:3"}, groups)
	})

	t.Run("faculty gets no semester tag", func(t *testing.T) {
		claims := &auth.JWTClaims{UserID: "f1", Role: auth.RoleFaculty, Department: "CS", Semester: 3}
		groups := GroupsForClaims(claims)
		assert.ElementsMatch(t, []string{"user:f1", "role:faculty", "department:CS"}, groups)
	})

	t.Run("no department claim no department tag", func(t *testing.T) {
		claims := &auth.JWTClaims{UserID: "a1", Role: auth.RoleAdmin}
		groups := GroupsForClaims(claims)
		assert.ElementsMatch(t, []string{"user:a1", "role:admin"}, groups)
	})
}
