package service

import (
	"DocStack/backend-go/internal/conf"
	"DocStack/backend-go/internal/dto"
	"DocStack/backend-go/internal/errs"
	"DocStack/backend-go/internal/model"
	"DocStack/backend-go/internal/repository"
	"DocStack/backend-go/internal/utils"
)

type AuthService interface {
	Register(req dto.RegisterReq) (uint, error)
	Login(req dto.LoginReq) (*dto.LoginResp, error)
	Profile(userID uint) (*dto.ProfileResp, error)
}

type authService struct {
	repo repository.UserRepository
	cfg  *conf.AuthConfig
}

func NewAuthService(repo repository.UserRepository, cfg *conf.AuthConfig) AuthService {
	return &authService{repo: repo, cfg: cfg}
}

// Register 注册业务逻辑
func (s *authService) Register(req dto.RegisterReq) (uint, error) {
	// 1. 业务检查：用户名是否存在
	if s.repo.IsUsernameExist(req.Username) {
		return 0, errs.Conflict("用户名已存在")
	}

	// 2. 密码加密
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return 0, err
	}

	// 3. 组装 Model
	user := &model.User{
		Username:     req.Username,
		PasswordHash: hash,
		Email:        req.Email,
		Role:         "user",
	}

	// 4. 落库
	if err := s.repo.Create(user); err != nil {
		return 0, err
	}

	return user.ID, nil
}

// Login 登录业务逻辑
func (s *authService) Login(req dto.LoginReq) (*dto.LoginResp, error) {
	// 1. 查用户
	user, err := s.repo.GetByUsername(req.Username)
	if err != nil {
		return nil, errs.Validation("用户名或密码错误")
	}

	// 2. 比对密码
	if !utils.CheckPasswordHash(req.Password, user.PasswordHash) {
		return nil, errs.Validation("用户名或密码错误")
	}

	// 3. 签发 Token
	token, err := utils.GenerateToken(s.cfg.JWTSecret, s.cfg.JWTExpireMins, user.ID, user.Username, user.Role)
	if err != nil {
		return nil, err
	}

	return &dto.LoginResp{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}, nil
}

// Profile 当前登录用户信息
func (s *authService) Profile(userID uint) (*dto.ProfileResp, error) {
	user, err := s.repo.GetByID(userID)
	if err != nil {
		return nil, errs.NotFound("用户不存在 (id=%d)", userID)
	}

	return &dto.ProfileResp{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}, nil
}
