package service

import (
	"fmt"
	"log"
	"os"
	"path"
	"time"

	"DocStack/backend-go/internal/conf"
	"DocStack/backend-go/internal/errs"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// =================================================================================
// Pipeline 部署器：把渲染好的 YAML 通过 SFTP 写到运行时机器
// 目录约定: {base}/{slug}/indexing.yaml 和 {base}/{slug}/query.yaml
// Hayhooks 监听目录变化自动加载，写成功即部署成功，不做读回校验
// =================================================================================

// DeployStatus 远端部署状态
type DeployStatus struct {
	Deployed       bool     `json:"deployed"`
	Files          []string `json:"files"`
	IndexingExists bool     `json:"indexing_exists"`
	QueryExists    bool     `json:"query_exists"`
}

type SFTPDeployer struct {
	cfg conf.DeployConfig
}

func NewSFTPDeployer(cfg conf.DeployConfig) *SFTPDeployer {
	return &SFTPDeployer{cfg: cfg}
}

// connect 建立 SSH + SFTP 会话
func (d *SFTPDeployer) connect() (*ssh.Client, *sftp.Client, error) {
	key, err := os.ReadFile(d.cfg.SSHKeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取私钥失败: %v", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("解析私钥失败: %v", err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            d.cfg.SSHUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // 内网部署机，跳过 host key 校验
		Timeout:         10 * time.Second,
	}

	sshClient, err := ssh.Dial("tcp", d.cfg.SSHHost, sshCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("SSH 连接失败 (%s): %v", d.cfg.SSHHost, err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("SFTP 会话建立失败: %v", err)
	}

	return sshClient, sftpClient, nil
}

// Deploy 写入单条 Pipeline 定义
// 写失败只返回 RemoteWriteError，数据库状态由上层在确认写成功后才更新
func (d *SFTPDeployer) Deploy(slug string, pipelineType string, yamlContent string) error {
	sshClient, sftpClient, err := d.connect()
	if err != nil {
		return errs.RemoteWrite("Pipeline 部署连接失败", err)
	}
	defer sshClient.Close()
	defer sftpClient.Close()

	// 确保库目录存在
	dir := path.Join(d.cfg.PipelineDir, slug)
	if err := sftpClient.MkdirAll(dir); err != nil {
		return errs.RemoteWrite("创建远端目录失败", err)
	}

	// 写 YAML (覆盖旧版本，历史由数据库 version 字段追溯)
	target := path.Join(dir, pipelineType+".yaml")
	f, err := sftpClient.Create(target)
	if err != nil {
		return errs.RemoteWrite("创建远端文件失败", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte(yamlContent)); err != nil {
		return errs.RemoteWrite("写入远端文件失败", err)
	}

	log.Printf("✅ Pipeline 已部署: %s", target)
	return nil
}

// DeletePipelines 删库时清理远端目录 (尽力而为，失败由上层归为 PartialFailure)
func (d *SFTPDeployer) DeletePipelines(slug string) error {
	sshClient, sftpClient, err := d.connect()
	if err != nil {
		return errs.RemoteWrite("Pipeline 清理连接失败", err)
	}
	defer sshClient.Close()
	defer sftpClient.Close()

	dir := path.Join(d.cfg.PipelineDir, slug)

	entries, err := sftpClient.ReadDir(dir)
	if err != nil {
		// 目录不存在视为已清理
		return nil
	}
	for _, e := range entries {
		if err := sftpClient.Remove(path.Join(dir, e.Name())); err != nil {
			return errs.RemoteWrite("删除远端文件失败", err)
		}
	}
	if err := sftpClient.RemoveDirectory(dir); err != nil {
		return errs.RemoteWrite("删除远端目录失败", err)
	}

	log.Printf("✅ 远端 Pipeline 目录已清理: %s", dir)
	return nil
}

// CheckDeployment 查看远端部署状态
func (d *SFTPDeployer) CheckDeployment(slug string) (*DeployStatus, error) {
	sshClient, sftpClient, err := d.connect()
	if err != nil {
		return nil, errs.RemoteWrite("部署状态检查连接失败", err)
	}
	defer sshClient.Close()
	defer sftpClient.Close()

	dir := path.Join(d.cfg.PipelineDir, slug)
	entries, err := sftpClient.ReadDir(dir)
	if err != nil {
		return &DeployStatus{Deployed: false, Files: []string{}}, nil
	}

	status := &DeployStatus{Deployed: true, Files: make([]string, 0, len(entries))}
	for _, e := range entries {
		status.Files = append(status.Files, e.Name())
		switch e.Name() {
		case "indexing.yaml":
			status.IndexingExists = true
		case "query.yaml":
			status.QueryExists = true
		}
	}
	return status, nil
}
