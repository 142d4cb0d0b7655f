package auth

// 账号角色
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Decision 访问控制结果
type Decision int

const (
	DecisionAllow     Decision = iota
	DecisionLogin              // 未登录，需要跳转登录
	DecisionForbidden          // 已登录但缺少角色，跳转首页
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionLogin:
		return "login"
	case DecisionForbidden:
		return "forbidden"
	}
	return "unknown"
}

// Principal 访问控制需要的身份信息
type Principal interface {
	IsAuthenticated() bool
	HasRole(role string) bool
}

// Guard 判断 principal 能否访问需要 requiredRole 的资源，requiredRole 为空时只要求登录
//
// owner 同时满足 member 的要求。
func Guard(p Principal, requiredRole string) Decision {
	if p == nil || !p.IsAuthenticated() {
		return DecisionLogin
	}
	if requiredRole == "" || p.HasRole(requiredRole) {
		return DecisionAllow
	}
	if requiredRole == RoleMember && p.HasRole(RoleOwner) {
		return DecisionAllow
	}
	return DecisionForbidden
}
