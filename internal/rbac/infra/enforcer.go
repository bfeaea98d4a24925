package infra

import (
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// ModelText is a role-inheriting RBAC model over (role, resource, action).
const ModelText = `[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// NewEnforcer loads the model from modelPath, or the built-in model when
// modelPath is empty.
func NewEnforcer(modelPath string) (*casbin.Enforcer, error) {
	if modelPath != "" {
		return casbin.NewEnforcer(modelPath)
	}
	m, err := model.NewModelFromString(ModelText)
	if err != nil {
		return nil, err
	}
	return casbin.NewEnforcer(m)
}
