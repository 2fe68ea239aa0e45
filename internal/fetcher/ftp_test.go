package fetcher

import (
	"context"
	"errors"
	"net/textproto"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{
			name:     "census mirror",
			url:      "ftp://ftp2.census.gov/programs-surveys/metro-micro/geographies/reference-files/2023/delineation-files/list1_2023.xlsx",
			wantHost: "ftp2.census.gov:21",
			wantPath: "/programs-surveys/metro-micro/geographies/reference-files/2023/delineation-files/list1_2023.xlsx",
		},
		{
			name:     "explicit port",
			url:      "ftp://mirror.example.com:2121/data/file.csv",
			wantHost: "mirror.example.com:2121",
			wantPath: "/data/file.csv",
		},
		{
			name:    "http scheme rejected",
			url:     "https://www2.census.gov/file.xlsx",
			wantErr: true,
		},
		{
			name:    "empty path",
			url:     "ftp://ftp2.census.gov",
			wantErr: true,
		},
		{
			name:    "invalid url",
			url:     "://bad",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, err := parseFTPURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestFTPShouldRetry(t *testing.T) {
	assert.True(t, ftpShouldRetry(&textproto.Error{Code: 421, Msg: "Service not available"}))
	assert.True(t, ftpShouldRetry(&textproto.Error{Code: 450, Msg: "File busy"}))
	assert.False(t, ftpShouldRetry(&textproto.Error{Code: 550, Msg: "No such file"}))
	assert.True(t, ftpShouldRetry(syscall.ECONNREFUSED))
	assert.False(t, ftpShouldRetry(errors.New("login incorrect")))

	// Classification survives wrapping.
	wrapped := eris.Wrap(&textproto.Error{Code: 426, Msg: "Transfer aborted"}, "ftp: retrieve /pub/list1.xlsx")
	assert.True(t, ftpShouldRetry(wrapped))
}

func TestDownload_NonFTPScheme(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{})
	_, err := f.Download(context.Background(), "https://www2.census.gov/list1.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected ftp scheme")
}

func TestNewFTPFetcher_Defaults(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{})
	assert.Equal(t, 30*time.Second, f.opts.Timeout)
	assert.Equal(t, 3, f.opts.MaxRetries)
}
