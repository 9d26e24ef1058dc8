package blog_test

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	require.NoError(t, err, "failed to read %s", name)
	return string(data)
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readFile(t, "Dockerfile")

	// マルチステージビルドの確認: ビルドステージと実行ステージが存在すること
	assert.Contains(t, content, "FROM golang:", "Dockerfile should contain a Go builder stage")

	// 最終ステージは軽量イメージであること
	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	minimal := strings.Contains(lastFrom, "gcr.io/distroless") || strings.Contains(lastFrom, "alpine") || strings.Contains(lastFrom, "scratch")
	assert.True(t, minimal, "final stage should use a minimal base image (distroless/alpine/scratch), got: %s", lastFrom)
}

func TestDockerfileBuildsBlogBinary(t *testing.T) {
	content := readFile(t, "Dockerfile")

	assert.Contains(t, content, "./cmd/blog")
	assert.Contains(t, content, "ENTRYPOINT")
	// distrolessにはシェルがないため、ヘルスチェックはサブコマンドで行う
	assert.Contains(t, content, `"healthcheck"`, "Dockerfile HEALTHCHECK should use the healthcheck subcommand")
}

func TestDockerComposeServices(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	for _, svc := range []string{"api:", "migrate:", "db:", "redis:"} {
		assert.Contains(t, content, svc, "docker-compose.yml should contain service %q", svc)
	}
	assert.Contains(t, content, "postgres:", "docker-compose.yml should use PostgreSQL image")
}

func TestDockerComposeNetworks(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	// DBとRedisは外部から到達できない内部ネットワークに置く
	assert.Contains(t, content, "internal: true")
}

// TestStaticDirExists はフロントエンド資産のマウント先となるディレクトリが存在することを検証する。
// 資産そのものはデプロイ時にSTATIC_DIRへ配置される。
func TestStaticDirExists(t *testing.T) {
	info, err := os.Stat("public")
	require.NoError(t, err, "public directory should exist")
	assert.True(t, info.IsDir(), "public should be a directory")
}
