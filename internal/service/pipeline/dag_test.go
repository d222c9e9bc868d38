package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-medallion/internal/domain"
)

func TestResolveExecutionOrder(t *testing.T) {
	tests := []struct {
		name    string
		stages  []Stage
		want    [][]string
		wantErr bool
	}{
		{
			name:   "single_stage",
			stages: []Stage{{Name: "bronze"}},
			want:   [][]string{{"bronze"}},
		},
		{
			name: "medallion_chain",
			stages: []Stage{
				{Name: "gold", DependsOn: []string{"silver"}},
				{Name: "bronze"},
				{Name: "silver", DependsOn: []string{"bronze"}},
			},
			want: [][]string{{"bronze"}, {"silver"}, {"gold"}},
		},
		{
			name: "diamond_keeps_declaration_order",
			stages: []Stage{
				{Name: "bronze"},
				{Name: "silver_b", DependsOn: []string{"bronze"}},
				{Name: "silver_a", DependsOn: []string{"bronze"}},
				{Name: "gold", DependsOn: []string{"silver_a", "silver_b"}},
			},
			want: [][]string{{"bronze"}, {"silver_b", "silver_a"}, {"gold"}},
		},
		{
			name:   "independent_stages",
			stages: []Stage{{Name: "a"}, {Name: "b"}, {Name: "c"}},
			want:   [][]string{{"a", "b", "c"}},
		},
		{
			name:   "empty",
			stages: nil,
			want:   nil,
		},
		{
			name: "cycle_detected",
			stages: []Stage{
				{Name: "a", DependsOn: []string{"b"}},
				{Name: "b", DependsOn: []string{"a"}},
			},
			wantErr: true,
		},
		{
			name:    "unknown_dependency",
			stages:  []Stage{{Name: "a", DependsOn: []string{"nonexistent"}}},
			wantErr: true,
		},
		{
			name:    "self_dependency",
			stages:  []Stage{{Name: "a", DependsOn: []string{"a"}}},
			wantErr: true,
		},
		{
			name:    "duplicate_stage",
			stages:  []Stage{{Name: "a"}, {Name: "a"}},
			wantErr: true,
		},
		{
			name:    "unnamed_stage",
			stages:  []Stage{{}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels, err := ResolveExecutionOrder(tt.stages)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorAs(t, err, new(*domain.ValidationError))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, levels)
		})
	}
}
