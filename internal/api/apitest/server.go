// Package apitest 提供内存版的邮箱 API，供其他包的测试使用
package apitest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"tempmail/client/internal/domain"
)

// MailboxHeader 服务端识别邮箱密码的请求头
const MailboxHeader = "X-Mailbox-Password"

type attachment struct {
	contentType string
	content     []byte
}

type mailbox struct {
	password    string
	expiresAt   time.Time
	mails       []domain.MailSummary
	attachments map[string]attachment // mailID/filename
}

// Server 内存版邮箱 API
type Server struct {
	*httptest.Server

	// Domains GET /domains 返回的域名列表
	Domains []string
	// ValidToken 账号接口接受的 bearer 令牌
	ValidToken string
	// TTL 新邮箱的有效期
	TTL time.Duration

	mu          sync.Mutex
	mailboxes   map[string]*mailbox
	created     int
	requests    map[string]int
	userDomains []domain.UserDomain
	apiKeys     []domain.APIKey
	members     []domain.TeamMember
	nextID      int
}

// NewServer 启动服务，测试结束时调用 Close
func NewServer() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		Domains:    []string{"example.com", "temp.mail"},
		ValidToken: "valid-token",
		TTL:        time.Hour,
		mailboxes:  make(map[string]*mailbox),
		requests:   make(map[string]int),
		userDomains: []domain.UserDomain{
			{ID: "d1", Domain: "mine.example", Mode: domain.DomainModeShared, Status: domain.DomainStatusVerified, IsActive: true},
		},
		apiKeys: []domain.APIKey{{ID: "k1", Name: "ci", KeyPrefix: "tm_ab", IsActive: true}},
		members: []domain.TeamMember{{ID: "u1", Email: "owner@example.com", Role: domain.TeamRoleOwner}},
	}

	r := gin.New()
	r.Use(s.count)
	r.GET("/domains", func(c *gin.Context) { ok(c, s.Domains) })
	r.POST("/mailbox", s.createMailbox)
	r.GET("/mailbox/:alias", s.getMailbox)
	r.DELETE("/mailbox/:alias/mail/:id", s.deleteMail)
	r.GET("/mailbox/:alias/mail/:id/attachment/:filename", s.getAttachment)

	account := r.Group("/", s.requireToken)
	account.GET("/user/domains", func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		ok(c, append([]domain.UserDomain{}, s.userDomains...))
	})
	account.POST("/user/domains", s.addUserDomain)
	account.POST("/user/domains/:id/verify", s.verifyUserDomain)
	account.DELETE("/user/domains/:id", func(c *gin.Context) {
		s.remove(c, "domain", removeByID(&s.userDomains, func(d domain.UserDomain) string { return d.ID }))
	})
	account.GET("/api-keys", func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		ok(c, append([]domain.APIKey{}, s.apiKeys...))
	})
	account.POST("/api-keys", s.createAPIKey)
	account.DELETE("/api-keys/:id", func(c *gin.Context) {
		s.remove(c, "api key", removeByID(&s.apiKeys, func(k domain.APIKey) string { return k.ID }))
	})
	account.GET("/team/members", func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		ok(c, append([]domain.TeamMember{}, s.members...))
	})
	account.POST("/team/members", s.inviteTeamMember)
	account.DELETE("/team/members/:id", func(c *gin.Context) {
		s.remove(c, "member", removeByID(&s.members, func(m domain.TeamMember) string { return m.ID }))
	})
	account.GET("/subscription", func(c *gin.Context) {
		ok(c, domain.Subscription{Tier: domain.TierPro, Status: "active"})
	})
	account.GET("/plans", func(c *gin.Context) {
		ok(c, []domain.Plan{{ID: "pro", Tier: domain.TierPro, Name: "Pro"}})
	})

	s.Server = httptest.NewServer(r)
	return s
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "msg": "ok", "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"code": status, "msg": msg})
}

func (s *Server) count(c *gin.Context) {
	s.mu.Lock()
	s.requests[c.Request.Method+" "+c.FullPath()]++
	s.mu.Unlock()
	c.Next()
}

func (s *Server) requireToken(c *gin.Context) {
	if c.GetHeader("Authorization") != "Bearer "+s.ValidToken {
		fail(c, http.StatusUnauthorized, "invalid token")
		return
	}
	c.Next()
}

// Requests 返回某个路由收到的请求数，route 形如 "GET /mailbox/:alias"
func (s *Server) Requests(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[route]
}

func (s *Server) createMailbox(c *gin.Context) {
	password := c.GetHeader(MailboxHeader)
	if password == "" {
		fail(c, http.StatusBadRequest, "missing mailbox password")
		return
	}
	var req struct {
		Domain string `json:"domain"`
	}
	_ = c.ShouldBindJSON(&req)

	mailDomain := strings.ToLower(req.Domain)
	if mailDomain == "" && len(s.Domains) > 0 {
		mailDomain = s.Domains[0]
	}
	if !s.allowed(mailDomain) {
		fail(c, http.StatusBadRequest, "domain not allowed")
		return
	}

	s.mu.Lock()
	s.created++
	address := fmt.Sprintf("box%d@%s", s.created, mailDomain)
	mb := &mailbox{
		password:    password,
		expiresAt:   time.Now().Add(s.TTL).UTC().Truncate(time.Second),
		attachments: make(map[string]attachment),
	}
	s.mailboxes[address] = mb
	s.mu.Unlock()

	ok(c, gin.H{"email": address, "expireAt": mb.expiresAt})
}

func (s *Server) allowed(mailDomain string) bool {
	for _, d := range s.Domains {
		if d == mailDomain {
			return true
		}
	}
	return false
}

// lookup 校验邮箱密码，调用方持有 s.mu
func (s *Server) lookup(c *gin.Context) (*mailbox, bool) {
	mb, exists := s.mailboxes[strings.ToLower(c.Param("alias"))]
	if !exists {
		fail(c, http.StatusNotFound, "mailbox not found")
		return nil, false
	}
	if mb.password != c.GetHeader(MailboxHeader) {
		fail(c, http.StatusForbidden, "wrong mailbox password")
		return nil, false
	}
	return mb, true
}

func (s *Server) getMailbox(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, found := s.lookup(c)
	if !found {
		return
	}
	mails := append([]domain.MailSummary{}, mb.mails...)
	ok(c, gin.H{"mails": mails, "expiresAt": mb.expiresAt})
}

func (s *Server) deleteMail(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, found := s.lookup(c)
	if !found {
		return
	}
	id := domain.MailID(c.Param("id"))
	for i, m := range mb.mails {
		if m.ID == id {
			mb.mails = append(mb.mails[:i], mb.mails[i+1:]...)
			ok(c, gin.H{"message": "mail deleted"})
			return
		}
	}
	fail(c, http.StatusNotFound, "mail not found")
}

func (s *Server) getAttachment(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, found := s.lookup(c)
	if !found {
		return
	}
	att, exists := mb.attachments[c.Param("id")+"/"+c.Param("filename")]
	if !exists {
		fail(c, http.StatusNotFound, "attachment not found")
		return
	}
	c.Data(http.StatusOK, att.contentType, att.content)
}

// Deliver 向邮箱投递一封邮件
func (s *Server) Deliver(address string, mail domain.MailSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mb, exists := s.mailboxes[address]; exists {
		if mail.ReceivedAt.IsZero() {
			mail.ReceivedAt = time.Now().UTC()
		}
		mb.mails = append(mb.mails, mail)
	}
}

// AddAttachment 为邮件添加附件
func (s *Server) AddAttachment(address string, id domain.MailID, filename, contentType string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mb, exists := s.mailboxes[address]; exists {
		mb.attachments[string(id)+"/"+filename] = attachment{contentType: contentType, content: content}
	}
}

// Expire 把邮箱的过期时间设为过去
func (s *Server) Expire(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mb, exists := s.mailboxes[address]; exists {
		mb.expiresAt = time.Now().Add(-time.Minute).UTC()
	}
}

// Mails 返回邮箱中的邮件
func (s *Server) Mails(address string) []domain.MailSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mb, exists := s.mailboxes[address]; exists {
		return append([]domain.MailSummary{}, mb.mails...)
	}
	return nil
}

// Created 返回已创建的邮箱数
func (s *Server) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// newID 生成账号资源 ID，调用方持有 s.mu
func (s *Server) newID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s%d", prefix, 100+s.nextID)
}

// removeByID 返回从列表中删除指定 ID 的函数，调用方持有 s.mu
func removeByID[T any](items *[]T, idOf func(T) string) func(id string) bool {
	return func(id string) bool {
		for i, item := range *items {
			if idOf(item) == id {
				*items = append((*items)[:i], (*items)[i+1:]...)
				return true
			}
		}
		return false
	}
}

func (s *Server) remove(c *gin.Context, kind string, del func(id string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !del(c.Param("id")) {
		fail(c, http.StatusNotFound, kind+" not found")
		return
	}
	ok(c, gin.H{"message": kind + " deleted"})
}

func (s *Server) addUserDomain(c *gin.Context) {
	var req domain.AddUserDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Domain == "" {
		fail(c, http.StatusBadRequest, "domain is required")
		return
	}
	if req.Mode == "" {
		req.Mode = domain.DomainModeShared
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.userDomains {
		if d.Domain == req.Domain {
			fail(c, http.StatusBadRequest, "domain already added")
			return
		}
	}
	d := domain.UserDomain{
		ID:           s.newID("d"),
		Domain:       req.Domain,
		Mode:         req.Mode,
		Status:       domain.DomainStatusPending,
		VerifyToken:  "tempmail-verify=" + req.Domain,
		VerifyMethod: "txt",
		CreatedAt:    time.Now().UTC(),
		IsActive:     true,
	}
	s.userDomains = append(s.userDomains, d)
	ok(c, d)
}

func (s *Server) verifyUserDomain(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.userDomains {
		if s.userDomains[i].ID == c.Param("id") {
			now := time.Now().UTC()
			s.userDomains[i].Status = domain.DomainStatusVerified
			s.userDomains[i].VerifiedAt = &now
			ok(c, s.userDomains[i])
			return
		}
	}
	fail(c, http.StatusNotFound, "domain not found")
}

func (s *Server) createAPIKey(c *gin.Context) {
	var req domain.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		fail(c, http.StatusBadRequest, "name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID("k")
	key := domain.APIKey{
		ID:        id,
		Name:      req.Name,
		KeyPrefix: "tm_" + id,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: req.ExpiresAt,
	}
	s.apiKeys = append(s.apiKeys, key)
	key.Key = key.KeyPrefix + "_secret"
	ok(c, key)
}

func (s *Server) inviteTeamMember(c *gin.Context) {
	var req domain.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		fail(c, http.StatusBadRequest, "email is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m := domain.TeamMember{ID: s.newID("u"), Email: req.Email, Role: req.Role, Pending: true}
	s.members = append(s.members, m)
	ok(c, m)
}
