// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buffered

import (
	"bufio"
	"bytes"
	"net"
	"time"

	"github.com/cnotch/rtpengine/stats"
	"github.com/kelindar/rate"
)

const (
	defaultRate       = 50
	defaultBufferSize = 64 * 1024
	minBufferSize     = 8 * 1024
)

// Conn 带读写缓冲的连接，写入按频率合并后刷新，读写字节计入流量统计
type Conn struct {
	socket     net.Conn      // 底层连接
	reader     *bufio.Reader // 读缓冲
	writer     *bytes.Buffer // 待发送的写缓冲
	limit      *rate.Limiter // 刷新频率限制
	bufferSize int           // 读写缓冲大小
	flow       stats.Flow    // 流量统计，可为 nil
}

// NewConn 包装 c，已是 *Conn 时只应用选项
func NewConn(c net.Conn, options ...Option) *Conn {
	conn, ok := c.(*Conn)
	if !ok {
		conn = &Conn{
			socket: c,
		}
	}

	for _, option := range options {
		option.apply(conn)
	}

	if conn.limit == nil {
		conn.limit = rate.New(defaultRate, time.Second)
	}
	if conn.bufferSize <= 0 {
		conn.bufferSize = defaultBufferSize
	}

	conn.reader = bufio.NewReaderSize(countingReader{conn}, conn.bufferSize)
	conn.writer = bytes.NewBuffer(make([]byte, 0, conn.bufferSize))
	return conn
}

type countingReader struct {
	c *Conn
}

func (r countingReader) Read(p []byte) (int, error) {
	n, err := r.c.socket.Read(p)
	if n > 0 && r.c.flow != nil {
		r.c.flow.AddIn(int64(n))
	}
	return n, err
}

// Buffered 写缓冲中待发送的字节数
func (m *Conn) Buffered() (n int) {
	return m.writer.Len()
}

// Reader 返回内部的 bufio.Reader，交织包从这里读取
func (m *Conn) Reader() *bufio.Reader {
	return m.reader
}

// Flush 立即发送写缓冲中的数据
func (m *Conn) Flush() (n int, err error) {
	if m.Buffered() == 0 {
		return 0, nil
	}

	n, err = m.writeFull(m.writer.Bytes())
	m.writer.Reset()
	return
}

// Read 从读缓冲读取
func (m *Conn) Read(p []byte) (int, error) {
	return m.reader.Read(p)
}

// Write 写入写缓冲，到达刷新间隔或缓冲满时发送
func (m *Conn) Write(p []byte) (nn int, err error) {
	var n int
	// 缓冲放不下 p
	for len(p) > m.bufferSize-m.Buffered() && err == nil {
		if m.Buffered() == 0 {
			// 缓冲为空，直接发送避免拷贝
			n, err = m.writeFull(p)
		} else {
			n, err = m.writer.Write(p[:m.bufferSize-m.writer.Len()])
			_, err = m.Flush()
		}
		nn += n
		p = p[n:]
	}

	if err != nil {
		return nn, err
	}

	// 未到刷新间隔，只写缓冲
	if m.limit.Limit() {
		n, err = m.writer.Write(p)
		return nn + n, err
	}

	if m.Buffered() > 0 {
		n, err = m.writer.Write(p)
		_, err = m.Flush()
		return nn + n, err
	}

	n, err = m.writeFull(p)
	return nn + n, err
}

func (m *Conn) writeFull(p []byte) (nn int, err error) {
	var n int
	for len(p) > 0 && err == nil {
		n, err = m.socket.Write(p)
		nn += n
		p = p[n:]
	}
	if nn > 0 && m.flow != nil {
		m.flow.AddOut(int64(nn))
	}
	return nn, err
}

// Close 关闭底层连接
func (m *Conn) Close() error {
	return m.socket.Close()
}

// LocalAddr 本地地址
func (m *Conn) LocalAddr() net.Addr {
	return m.socket.LocalAddr()
}

// RemoteAddr 对端地址
func (m *Conn) RemoteAddr() net.Addr {
	return m.socket.RemoteAddr()
}

// SetDeadline 同时设置读写超时
func (m *Conn) SetDeadline(t time.Time) error {
	return m.socket.SetDeadline(t)
}

// SetReadDeadline 设置读超时
func (m *Conn) SetReadDeadline(t time.Time) error {
	return m.socket.SetReadDeadline(t)
}

// SetWriteDeadline 设置写超时
func (m *Conn) SetWriteDeadline(t time.Time) error {
	return m.socket.SetWriteDeadline(t)
}

// Option 配置 Conn 的选项接口
type Option interface {
	apply(*Conn)
}

type optionFunc func(*Conn)

func (f optionFunc) apply(c *Conn) {
	f(c)
}

// FlushRate Conn 写操作的每秒刷新频率
func FlushRate(r int) Option {
	return optionFunc(func(c *Conn) {
		if r < 1 { // 如果不合规，设置成默认值
			r = defaultRate
		}
		c.limit = rate.New(r, time.Second)
	})
}

// BufferSize Conn 缓冲大小
func BufferSize(bufferSize int) Option {
	return optionFunc(func(c *Conn) {
		if bufferSize < minBufferSize { // 如果不合规，设置成最小值
			bufferSize = minBufferSize
		}
		c.bufferSize = bufferSize
	})
}

// Flow 读写字节计入 flow
func Flow(flow stats.Flow) Option {
	return optionFunc(func(c *Conn) {
		c.flow = flow
	})
}
