package psxgpu

// WGSL shader sources for the renderer's pipelines. Uniform structs must
// stay in sync with the encode helpers in uniforms.go, vertex inputs with
// the layouts in vertex.go.

// commandShaderSource renders draw-command primitives into the working
// VRAM image. Texturing reconstructs the console's 16-bit texels from the
// RGBA8-encoded VRAM source image, including 4bpp/8bpp palette lookups.
const commandShaderSource = `
struct DrawUniforms {
    offset: vec2<i32>,
    vram_size: vec2<u32>,
    area_min: vec2<u32>,
    area_max: vec2<u32>,
    upscaling: u32,
    color_depth: u32,
    blend_weight: f32,
    dither: u32,
};

@group(0) @binding(0) var<uniform> uni: DrawUniforms;
@group(0) @binding(1) var vram: texture_2d<f32>;
@group(0) @binding(2) var vram_sampler: sampler;

struct VertexIn {
    @location(0) position: vec4<i32>,
    @location(1) color: vec4<u32>,
    @location(2) tex_coord: vec2<u32>,
    @location(3) tex_page: vec2<u32>,
    @location(4) clut: vec2<u32>,
    @location(5) flags: vec4<u32>,
};

struct VertexOut {
    @builtin(position) clip: vec4<f32>,
    @location(0) color: vec3<f32>,
    @location(1) tex_coord: vec2<f32>,
    @location(2) @interpolate(flat) tex_page: vec2<u32>,
    @location(3) @interpolate(flat) clut: vec2<u32>,
    @location(4) @interpolate(flat) flags: vec4<u32>,
    @location(5) vram_pos: vec2<f32>,
};

@vertex
fn vs_main(in: VertexIn) -> VertexOut {
    var out: VertexOut;
    let pos = vec2<f32>(
        f32(in.position.x + uni.offset.x),
        f32(in.position.y + uni.offset.y));
    let size = vec2<f32>(f32(uni.vram_size.x), f32(uni.vram_size.y));
    let x = pos.x / size.x * 2.0 - 1.0;
    let y = 1.0 - pos.y / size.y * 2.0;
    // The ordering index maps into [0, 1); the depth test is
    // greater-equal so later primitives win.
    let z = f32(in.position.z) / 32768.0;
    out.clip = vec4<f32>(x, y, z, 1.0);
    out.color = vec3<f32>(
        f32(in.color.x), f32(in.color.y), f32(in.color.z)) / 255.0;
    out.tex_coord = vec2<f32>(f32(in.tex_coord.x), f32(in.tex_coord.y));
    out.tex_page = in.tex_page;
    out.clut = in.clut;
    out.flags = in.flags;
    out.vram_pos = pos;
    return out;
}

// vram_texel reconstructs the 16-bit VRAM halfword stored at pos. The
// RGBA8 encoding of uploads is exact (c8 = c5 << 3 | c5 >> 2), so the
// reconstruction round-trips bit-for-bit.
fn vram_texel(pos: vec2<u32>) -> u32 {
    let c = textureLoad(vram, vec2<i32>(pos), 0);
    let r = u32(c.r * 255.0 + 0.5) >> 3u;
    let g = u32(c.g * 255.0 + 0.5) >> 3u;
    let b = u32(c.b * 255.0 + 0.5) >> 3u;
    var t = r | (g << 5u) | (b << 10u);
    if (c.a > 0.5) {
        t = t | 0x8000u;
    }
    return t;
}

fn texel_color(t: u32) -> vec3<f32> {
    let r5 = t & 0x1fu;
    let g5 = (t >> 5u) & 0x1fu;
    let b5 = (t >> 10u) & 0x1fu;
    return vec3<f32>(
        f32((r5 << 3u) | (r5 >> 2u)),
        f32((g5 << 3u) | (g5 >> 2u)),
        f32((b5 << 3u) | (b5 >> 2u))) / 255.0;
}

// Ordered dithering offsets applied to 8-bit channels before the 5-bit
// truncation of the 16-bit internal color depth.
const dither_table = array<i32, 16>(
    -4,  0, -3,  1,
     2, -2,  3, -1,
    -3,  1, -4,  0,
     3, -1,  2, -2);

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
    if (in.vram_pos.x < f32(uni.area_min.x) || in.vram_pos.y < f32(uni.area_min.y) ||
        in.vram_pos.x > f32(uni.area_max.x) + 1.0 || in.vram_pos.y > f32(uni.area_max.y) + 1.0) {
        discard;
    }

    let blend_mode = in.flags.x;
    let depth_shift = in.flags.y;
    let dither_on = in.flags.z;
    let semi_transparent = in.flags.w;

    var rgb: vec3<f32>;
    var mask = 0u;
    if (blend_mode == 0u) {
        rgb = in.color;
    } else {
        let tc = vec2<u32>(u32(in.tex_coord.x), u32(in.tex_coord.y));
        var texel: u32;
        if (depth_shift == 0u) {
            texel = vram_texel(in.tex_page + tc);
        } else if (depth_shift == 1u) {
            let t = vram_texel(vec2<u32>(in.tex_page.x + tc.x / 2u, in.tex_page.y + tc.y));
            let index = (t >> ((tc.x & 1u) * 8u)) & 0xffu;
            texel = vram_texel(vec2<u32>(in.clut.x + index, in.clut.y));
        } else {
            let t = vram_texel(vec2<u32>(in.tex_page.x + tc.x / 4u, in.tex_page.y + tc.y));
            let index = (t >> ((tc.x & 3u) * 4u)) & 0xfu;
            texel = vram_texel(vec2<u32>(in.clut.x + index, in.clut.y));
        }
        // Halfword 0x0000 is fully transparent in textures.
        if (texel == 0u) {
            discard;
        }
        mask = texel >> 15u;
        if (blend_mode == 1u) {
            rgb = texel_color(texel);
        } else {
            rgb = min(texel_color(texel) * in.color * 2.0, vec3<f32>(1.0));
        }
    }

    if (uni.color_depth == 16u) {
        var c = vec3<i32>(rgb * 255.0 + vec3<f32>(0.5));
        if (uni.dither == 1u && dither_on == 1u) {
            let dx = u32(in.vram_pos.x) & 3u;
            let dy = u32(in.vram_pos.y) & 3u;
            let d = dither_table[dy * 4u + dx];
            c = c + vec3<i32>(d);
        }
        c = clamp(c, vec3<i32>(0), vec3<i32>(255));
        // Truncate to the console's 5-bit channels, re-expanded exactly.
        let q = vec3<u32>(c) >> vec3<u32>(3u);
        rgb = vec3<f32>(
            f32((q.x << 3u) | (q.x >> 2u)),
            f32((q.y << 3u) | (q.y >> 2u)),
            f32((q.z << 3u) | (q.z >> 2u))) / 255.0;
    }

    var alpha: f32;
    if (semi_transparent == 1u) {
        alpha = uni.blend_weight;
    } else {
        alpha = f32(mask);
    }
    return vec4<f32>(rgb, alpha);
}
`

// outputShaderSource blits the visible display area of the working VRAM
// image to the presentation surface, handling the 24bpp reinterpretation
// of VRAM halfwords.
const outputShaderSource = `
struct OutputUniforms {
    origin: vec2<u32>,
    upscaling: u32,
    depth_24bpp: u32,
};

@group(0) @binding(0) var<uniform> uni: OutputUniforms;
@group(0) @binding(1) var fb: texture_2d<f32>;
@group(0) @binding(2) var fb_sampler: sampler;

struct VertexIn {
    @location(0) position: vec2<f32>,
    @location(1) fb_coord: vec2<u32>,
};

struct VertexOut {
    @builtin(position) clip: vec4<f32>,
    @location(0) fb_coord: vec2<f32>,
};

@vertex
fn vs_main(in: VertexIn) -> VertexOut {
    var out: VertexOut;
    out.clip = vec4<f32>(in.position, 0.0, 1.0);
    out.fb_coord = vec2<f32>(f32(in.fb_coord.x), f32(in.fb_coord.y));
    return out;
}

fn fb_texel(x: u32, y: u32) -> u32 {
    let c = textureLoad(fb, vec2<i32>(i32(x * uni.upscaling), i32(y * uni.upscaling)), 0);
    let r = u32(c.r * 255.0 + 0.5) >> 3u;
    let g = u32(c.g * 255.0 + 0.5) >> 3u;
    let b = u32(c.b * 255.0 + 0.5) >> 3u;
    var t = r | (g << 5u) | (b << 10u);
    if (c.a > 0.5) {
        t = t | 0x8000u;
    }
    return t;
}

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
    let rel = vec2<u32>(u32(in.fb_coord.x), u32(in.fb_coord.y));
    if (uni.depth_24bpp == 0u) {
        // Scale the fractional display coordinate before truncating so
        // every working-image texel inside a display pixel is reachable.
        let s = vec2<i32>((vec2<f32>(uni.origin) + in.fb_coord) * f32(uni.upscaling));
        let c = textureLoad(fb, s, 0);
        return vec4<f32>(c.rgb, 1.0);
    }
    // 24bpp: the display area reinterprets VRAM halfwords as packed
    // 8-bit RGB triplets.
    let byte = rel.x * 3u;
    let hx = uni.origin.x + byte / 2u;
    let y = uni.origin.y + rel.y;
    let t0 = fb_texel(hx, y);
    let t1 = fb_texel(hx + 1u, y);
    var rgb: vec3<u32>;
    if ((byte & 1u) == 0u) {
        rgb = vec3<u32>(t0 & 0xffu, t0 >> 8u, t1 & 0xffu);
    } else {
        rgb = vec3<u32>(t0 >> 8u, t1 & 0xffu, t1 >> 8u);
    }
    return vec4<f32>(vec3<f32>(rgb) / 255.0, 1.0);
}
`

// imageLoadShaderSource draws VRAM-space quads into the working image,
// sampling the source image. Used for texture uploads (src_offset zero)
// and VRAM-to-VRAM copies (src_offset = source - target). The quad writes
// depth from the uniforms so it participates in primitive ordering.
const imageLoadShaderSource = `
struct LoadUniforms {
    vram_size: vec2<u32>,
    src_offset: vec2<i32>,
    depth: f32,
    _pad0: u32,
    _pad1: vec2<u32>,
};

@group(0) @binding(0) var<uniform> uni: LoadUniforms;
@group(0) @binding(1) var src: texture_2d<f32>;
@group(0) @binding(2) var src_sampler: sampler;

struct VertexIn {
    @location(0) position: vec2<u32>,
};

struct VertexOut {
    @builtin(position) clip: vec4<f32>,
    @location(0) vram_pos: vec2<f32>,
};

@vertex
fn vs_main(in: VertexIn) -> VertexOut {
    var out: VertexOut;
    let size = vec2<f32>(f32(uni.vram_size.x), f32(uni.vram_size.y));
    let pos = vec2<f32>(f32(in.position.x), f32(in.position.y));
    out.clip = vec4<f32>(
        pos.x / size.x * 2.0 - 1.0,
        1.0 - pos.y / size.y * 2.0,
        uni.depth,
        1.0);
    out.vram_pos = pos;
    return out;
}

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
    let p = vec2<i32>(in.vram_pos) + uni.src_offset;
    return textureLoad(src, p, 0);
}
`

// blitShaderSource copies between the two VRAM images, resampling when
// their scales differ. Used for the working-to-source synchronization at
// frame boundaries and for content-preserving reallocation.
const blitShaderSource = `
struct BlitUniforms {
    dst_size: vec2<u32>,
    src_scale: f32,
    _pad: u32,
};

@group(0) @binding(0) var<uniform> uni: BlitUniforms;
@group(0) @binding(1) var src: texture_2d<f32>;
@group(0) @binding(2) var src_sampler: sampler;

struct VertexIn {
    @location(0) position: vec2<u32>,
};

struct VertexOut {
    @builtin(position) clip: vec4<f32>,
    @location(0) dst_pos: vec2<f32>,
};

@vertex
fn vs_main(in: VertexIn) -> VertexOut {
    var out: VertexOut;
    let size = vec2<f32>(f32(uni.dst_size.x), f32(uni.dst_size.y));
    let pos = vec2<f32>(f32(in.position.x), f32(in.position.y));
    out.clip = vec4<f32>(
        pos.x / size.x * 2.0 - 1.0,
        1.0 - pos.y / size.y * 2.0,
        0.0,
        1.0);
    out.dst_pos = pos;
    return out;
}

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
    return textureLoad(src, vec2<i32>(in.dst_pos * uni.src_scale), 0);
}
`
