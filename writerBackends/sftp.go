package writerbackends

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"clipflow/logger"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPBackend writes objects below basePath on a remote host. A connection
// is opened per write.
type SFTPBackend struct {
	addr     string
	basePath string
	config   *ssh.ClientConfig
}

func NewSFTPBackend(accessInfo map[string]string) (*SFTPBackend, error) {
	host := accessInfo["host"]
	port := accessInfo["port"]
	if port == "" {
		port = "22"
	}
	user := accessInfo["user"]
	password := accessInfo["password"]
	privateKey := accessInfo["privateKey"]
	basePath := accessInfo["basePath"]

	if host == "" || user == "" || basePath == "" {
		return nil, fmt.Errorf("missing required accessInfo keys: host, user, basePath")
	}

	var auths []ssh.AuthMethod
	if privateKey != "" {
		// Try base64 first, fall back to raw PEM
		keyBytes, err := base64.StdEncoding.DecodeString(privateKey)
		if err != nil {
			keyBytes = []byte(privateKey)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	} else if password != "" {
		auths = append(auths, ssh.Password(password))
	} else {
		return nil, fmt.Errorf("no auth method provided; set password or privateKey in accessInfo")
	}

	return &SFTPBackend{
		addr:     net.JoinHostPort(host, port),
		basePath: strings.TrimRight(basePath, "/"),
		config: &ssh.ClientConfig{
			User:            user,
			Auth:            auths,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         10 * time.Second,
		},
	}, nil
}

func (b *SFTPBackend) Name() string { return "sftp" }

func (b *SFTPBackend) Location(key string) string {
	return b.basePath + "/" + key
}

func (b *SFTPBackend) Write(ctx context.Context, key string, body io.Reader, opts WriteOptions) error {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", b.addr)
	if err != nil {
		return fmt.Errorf("dial tcp %s: %w", b.addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, b.addr, b.config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", b.addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)
	defer sshClient.Close()

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("create sftp client: %w", err)
	}
	defer sftpClient.Close()

	return writeSFTP(sftpClient, b.Location(key), body, opts)
}

func writeSFTP(client *sftp.Client, remotePath string, body io.Reader, opts WriteOptions) error {
	dir := path.Dir(remotePath)
	if err := mkdirAllSFTP(client, dir); err != nil {
		return fmt.Errorf("ensure remote dir %s: %w", dir, err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if opts.Exclusive {
		if _, err := client.Stat(remotePath); err == nil {
			return ErrExists
		}
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := client.OpenFile(remotePath, flags)
	if err != nil {
		if os.IsExist(err) {
			return ErrExists
		}
		return fmt.Errorf("create remote file %s: %w", remotePath, err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		client.Remove(remotePath)
		return fmt.Errorf("copy to remote file %s: %w", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close remote file %s: %w", remotePath, err)
	}

	logger.Infof("Successfully uploaded '%s'", remotePath)
	return nil
}

// mkdirAllSFTP creates the remote directory path step by step.
func mkdirAllSFTP(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	parts := strings.Split(dir, "/")
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}

	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := client.Stat(cur); err != nil {
			if os.IsNotExist(err) {
				if err := client.Mkdir(cur); err != nil {
					return fmt.Errorf("mkdir %s: %w", cur, err)
				}
			} else {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
		}
	}
	return nil
}
